package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"youredu/api/internal/authpw"
	"youredu/api/internal/store"
)

var (
	hashesFile   string
	hashesDryRun bool
)

// hashEntry is one line of the import file: [{"email": "...", "hash": "$2a$..."}].
type hashEntry struct {
	Email string `json:"email"`
	Hash  string `json:"hash"`
}

type hashSetter interface {
	SetPasswordHashByEmail(ctx context.Context, email, passwordHash string) (bool, error)
}

type importResult struct {
	Updated  []string
	Excluded []string
	Missing  []string
	Invalid  []string
}

var importHashesCmd = &cobra.Command{
	Use:   "import-password-hashes",
	Short: "Overwrite stored password hashes from a JSON file",
	Long: `Reads a JSON array of {"email", "hash"} objects and writes each bcrypt hash
to the matching account. Addresses listed in PASSWORD_IMPORT_EXCLUDE are
never touched.`,
	Example: `  youreductl import-password-hashes --file hashes.json --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashesFile == "" {
			return fmt.Errorf("--file is required")
		}
		file, err := os.Open(hashesFile)
		if err != nil {
			return fmt.Errorf("opening %s: %w", hashesFile, err)
		}
		defer func() { _ = file.Close() }()
		entries, err := readHashEntries(file)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		var setter hashSetter = store.NewPostgresStore(db)
		if hashesDryRun {
			setter = dryRunSetter{}
		}
		result, err := importHashes(ctx, setter, entries, cfg.ExcludedImports)
		printImportResult(cmd.OutOrStdout(), result, hashesDryRun)
		return err
	},
}

func init() {
	f := importHashesCmd.Flags()
	f.StringVar(&hashesFile, "file", "", "path to the JSON hash file")
	f.BoolVar(&hashesDryRun, "dry-run", false, "validate the file without writing")
}

func readHashEntries(r io.Reader) ([]hashEntry, error) {
	var entries []hashEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding hash file: %w", err)
	}
	return entries, nil
}

// importHashes writes every valid, non-excluded hash. It stops at the first
// store error and returns what was done up to that point.
func importHashes(ctx context.Context, setter hashSetter, entries []hashEntry, excluded []string) (importResult, error) {
	var result importResult
	for _, entry := range entries {
		email := authpw.NormalizeEmail(entry.Email)
		switch {
		case slices.Contains(excluded, email):
			result.Excluded = append(result.Excluded, email)
			continue
		case email == "" || !authpw.IsBcryptHash(entry.Hash):
			result.Invalid = append(result.Invalid, entry.Email)
			continue
		}
		updated, err := setter.SetPasswordHashByEmail(ctx, email, entry.Hash)
		if err != nil {
			return result, fmt.Errorf("updating %s: %w", email, err)
		}
		if updated {
			result.Updated = append(result.Updated, email)
		} else {
			result.Missing = append(result.Missing, email)
		}
	}
	return result, nil
}

type dryRunSetter struct{}

func (dryRunSetter) SetPasswordHashByEmail(context.Context, string, string) (bool, error) {
	return true, nil
}

func printImportResult(w io.Writer, result importResult, dryRun bool) {
	verb := "updated"
	if dryRun {
		verb = "would update"
	}
	fmt.Fprintf(w, "%s %d account(s)\n", verb, len(result.Updated))
	if len(result.Excluded) > 0 {
		fmt.Fprintf(w, "excluded: %s\n", strings.Join(result.Excluded, ", "))
	}
	if len(result.Missing) > 0 {
		fmt.Fprintf(w, "no account: %s\n", strings.Join(result.Missing, ", "))
	}
	if len(result.Invalid) > 0 {
		fmt.Fprintf(w, "skipped, not a bcrypt hash: %s\n", strings.Join(result.Invalid, ", "))
	}
}

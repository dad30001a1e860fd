// Package gitrepo keeps a git-backed revision history of each user's PSA draft.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"time"

	"youredu/api/internal/psa"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	formFile   = "form.json"
	mainBranch = "main"
)

// ErrNoHistory is returned when a user has never saved a draft.
var ErrNoHistory = errors.New("no draft history")

// Revision describes one saved version of a draft.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// FieldChange is one field that differs between two revisions.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Record commits form as the newest revision of the user's draft, creating
// the repository on first use. An unchanged form commits nothing and
// reports false.
func (s *Service) Record(userID string, form psa.Form, author, message string) (Revision, bool, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(userID)
	if err != nil {
		return Revision{}, false, err
	}

	if head, err := headCommit(repo); err == nil {
		previous, err := readFormFromCommit(head)
		if err == nil && !HasChanges(previous, form) {
			return toRevision(head), false, nil
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return Revision{}, false, err
	}

	hash, err := s.commit(repo, form, author, message)
	if err != nil {
		return Revision{}, false, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// History lists revisions newest first.
func (s *Service) History(userID string, limit int) ([]Revision, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(userID)
	if err != nil {
		if errors.Is(err, ErrNoHistory) {
			return []Revision{}, nil
		}
		return nil, err
	}
	head, err := headCommit(repo)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Revision{}, nil
		}
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// FormAt returns the draft as it was at hash (short or full).
func (s *Service) FormAt(userID, hash string) (psa.Form, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(userID)
	if err != nil {
		return nil, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readFormFromCommit(commitObj)
}

// Tag marks the current head, used when a draft is submitted.
func (s *Service) Tag(userID, name string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(userID)
	if err != nil {
		return err
	}
	head, err := headCommit(repo)
	if err != nil {
		return fmt.Errorf("resolve head: %w", err)
	}
	_, err = repo.CreateTag(name, head.Hash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "YourEDU",
			Email: "noreply@youredu.local",
			When:  s.now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// Tags lists tag names on the user's history.
func (s *Service) Tags(userID string) ([]string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(userID)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer iter.Close()
	names := make([]string, 0)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Service) repoPath(userID string) string {
	return filepath.Join(s.baseDir, userID)
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[userID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[userID] = lock
	return lock
}

func (s *Service) open(userID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(userID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(userID string) (*git.Repository, error) {
	repo, err := s.open(userID)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, ErrNoHistory) {
		return nil, err
	}

	path := s.repoPath(userID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) commit(repo *git.Repository, form psa.Form, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(form, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal form: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, formFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", formFile, err)
	}
	if _, err := worktree.Add(formFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add form: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@users.youredu.local", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit form: %w", err)
	}
	return hash, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return commitObj, nil
}

func readFormFromCommit(commitObj *object.Commit) (psa.Form, error) {
	file, err := commitObj.File(formFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", formFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open form reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read form bytes: %w", err)
	}
	return psa.DecodeForm(raw)
}

// DiffFields lists the fields whose values differ, sorted by name.
func DiffFields(from, to psa.Form) []FieldChange {
	keys := make(map[string]struct{}, len(from)+len(to))
	for k := range from {
		keys[k] = struct{}{}
	}
	for k := range to {
		keys[k] = struct{}{}
	}
	result := make([]FieldChange, 0)
	for k := range keys {
		if reflect.DeepEqual(from[k], to[k]) {
			continue
		}
		result = append(result, FieldChange{Field: k, Before: from[k], After: to[k]})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Field < result[j].Field
	})
	return result
}

func HasChanges(from, to psa.Form) bool {
	return len(DiffFields(normalize(from), normalize(to))) > 0
}

// normalize round-trips through JSON so in-memory values compare like stored ones.
func normalize(form psa.Form) psa.Form {
	raw, err := json.Marshal(form)
	if err != nil {
		return form
	}
	out, err := psa.DecodeForm(raw)
	if err != nil {
		return form
	}
	return out
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}

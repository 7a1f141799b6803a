package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	appLog "leasesched/internal/log"
	"leasesched/internal/model"
)

const (
	availabilityDir = "availability"
	meetingsDir     = "meetings"
)

// FileStore keeps one JSON file per record under a base directory:
//
//	<dir>/availability/<hash(listing id)>.json
//	<dir>/meetings/<hash(proposal id)>.json
//
// Writes go to a temp file that is renamed over the target, so readers
// never see a partial record.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

var (
	_ AvailabilityStore = (*FileStore)(nil)
	_ MeetingStore      = (*FileStore)(nil)
)

// NewFileStore creates the directory layout under dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store directory is empty")
	}
	for _, sub := range []string{availabilityDir, meetingsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) LoadAvailability(ctx context.Context, listingID string) (Availability, error) {
	var a Availability
	if listingID == "" {
		return a, errors.New("listing ID is empty")
	}
	if err := ctx.Err(); err != nil {
		return a, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := readJSON(s.path(availabilityDir, listingID), &a); err != nil {
		return Availability{}, err
	}
	return a, nil
}

func (s *FileStore) SaveAvailability(ctx context.Context, a Availability) error {
	if a.ListingID == "" {
		return errors.New("listing ID is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.path(availabilityDir, a.ListingID), a); err != nil {
		return fmt.Errorf("save availability %s: %w", a.ListingID, err)
	}
	appLog.Debug("availability saved", "listing_id", a.ListingID, "days", a.Days.String())
	return nil
}

func (s *FileStore) LoadMeeting(ctx context.Context, proposalID string) (*model.MeetingRequest, error) {
	if proposalID == "" {
		return nil, errors.New("proposal ID is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var req model.MeetingRequest
	if err := readJSON(s.path(meetingsDir, proposalID), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *FileStore) SaveMeeting(ctx context.Context, req *model.MeetingRequest) error {
	if req == nil || req.ProposalID == "" {
		return errors.New("meeting has no proposal ID")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.path(meetingsDir, req.ProposalID), req); err != nil {
		return fmt.Errorf("save meeting %s: %w", req.ProposalID, err)
	}
	appLog.Debug("meeting saved", "proposal_id", req.ProposalID, "meeting_id", req.ID)
	return nil
}

// ListMeetings returns every stored meeting ordered by proposal ID.
// Unreadable files are logged and skipped.
func (s *FileStore) ListMeetings(ctx context.Context) ([]*model.MeetingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.dir, meetingsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	out := make([]*model.MeetingRequest, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var req model.MeetingRequest
		if err := readJSON(filepath.Join(dir, e.Name()), &req); err != nil {
			appLog.Error("skip unreadable meeting file", err, "file", e.Name())
			continue
		}
		out = append(out, &req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposalID < out[j].ProposalID })
	return out, nil
}

// path maps a key to a file name. Keys are hashed so arbitrary IDs are
// safe as file names.
func (s *FileStore) path(kind, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, kind, hex.EncodeToString(sum[:16])+".json")
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON writes v atomically with 0600 perms.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".record-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

package allowlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"partner-gateway/internal/options"

	"github.com/google/uuid"
)

// Repository is the persistence contract for allowlist entries.
type Repository interface {
	Insert(ctx context.Context, e Entry) error
	// InsertBatch writes all entries or none of them.
	InsertBatch(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, entryID string) error
	ListActive(ctx context.Context, tenantID string) ([]Entry, error)
	ListAll(ctx context.Context) ([]Entry, error)
	Exists(ctx context.Context, tenantID, ip string) (bool, error)
}

// ModeFunc resolves the current enforcement mode from SecurityOptions.
type ModeFunc func() options.AllowlistMode

var (
	ErrInvalidIP = errors.New("allowlist: invalid IPv4 address")
	ErrDuplicate = errors.New("allowlist: entry already exists")
	ErrNotFound  = errors.New("allowlist: entry not found")
)

type Service struct {
	repo  Repository
	mode  ModeFunc
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, mode ModeFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, mode: mode, log: log, clock: time.Now}
}

// IsAllowed decides whether ip may act for tenantID under the current
// enforcement mode:
//
//	disabled  — always allowed, entries ignored
//	optional  — tenants without entries are not enforced
//	mandatory — tenants without active entries are denied outright
func (s *Service) IsAllowed(ctx context.Context, tenantID, ip string) (bool, error) {
	mode := options.AllowlistDisabled
	if s.mode != nil {
		mode = s.mode()
	}
	if mode == options.AllowlistDisabled {
		return true, nil
	}
	if tenantID == "" {
		// Anonymous traffic has no allowlist; the rate limiter covers it.
		return true, nil
	}

	entries, err := s.repo.ListActive(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return mode == options.AllowlistOptional, nil
	}
	for _, e := range entries {
		if e.Matches(ip) {
			return true, nil
		}
	}
	return false, nil
}

// Add creates a single exact-address entry.
func (s *Service) Add(ctx context.Context, tenantID, ip, description, createdBy string) (Entry, error) {
	if tenantID == "" {
		return Entry{}, errors.New("allowlist: tenant_id required")
	}
	ip = strings.TrimSpace(ip)
	if !ValidIPv4(ip) {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	dup, err := s.repo.Exists(ctx, tenantID, ip)
	if err != nil {
		return Entry{}, err
	}
	if dup {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicate, ip)
	}

	e := Entry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		IPAddress:   ip,
		Description: strings.TrimSpace(description),
		IsActive:    true,
		CreatedBy:   createdBy,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// AddRange creates an inclusive IPv4 range entry.
func (s *Service) AddRange(ctx context.Context, tenantID, start, end, description, createdBy string) (Entry, error) {
	if tenantID == "" {
		return Entry{}, errors.New("allowlist: tenant_id required")
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	lo, err := ipv4ToUint(start)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidIP, start)
	}
	hi, err := ipv4ToUint(end)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidIP, end)
	}
	if hi < lo {
		return Entry{}, fmt.Errorf("allowlist: range end %s below start %s", end, start)
	}

	e := Entry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		RangeStart:  start,
		RangeEnd:    end,
		Description: strings.TrimSpace(description),
		IsActive:    true,
		CreatedBy:   createdBy,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// BulkAdd parses one "ip[,description]" entry per line, skipping blank,
// malformed and duplicate lines, and returns how many rows were inserted.
// Bad lines never abort the import; the surviving lines land in a single
// batch write.
func (s *Service) BulkAdd(ctx context.Context, tenantID, lines, createdBy string) (int, error) {
	if tenantID == "" {
		return 0, errors.New("allowlist: tenant_id required")
	}

	now := s.clock().UTC()
	seen := make(map[string]struct{})
	var batch []Entry
	for _, line := range strings.Split(lines, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ip := line
		desc := ""
		if i := strings.Index(line, ","); i >= 0 {
			ip = strings.TrimSpace(line[:i])
			desc = strings.TrimSpace(line[i+1:])
		}
		if !ValidIPv4(ip) {
			s.log.Debug("bulk import skipped malformed line", "tenant_id", tenantID, "line", line)
			continue
		}
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}

		dup, err := s.repo.Exists(ctx, tenantID, ip)
		if err != nil {
			return 0, err
		}
		if dup {
			continue
		}

		batch = append(batch, Entry{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			IPAddress:   ip,
			Description: desc,
			IsActive:    true,
			CreatedBy:   createdBy,
			CreatedAt:   now,
		})
	}

	if len(batch) == 0 {
		return 0, nil
	}
	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

func (s *Service) Remove(ctx context.Context, entryID string) error {
	if entryID == "" {
		return errors.New("allowlist: entry_id required")
	}
	return s.repo.Delete(ctx, entryID)
}

func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.repo.ListAll(ctx)
}

func (s *Service) ListTenant(ctx context.Context, tenantID string) ([]Entry, error) {
	if tenantID == "" {
		return nil, errors.New("allowlist: tenant_id required")
	}
	return s.repo.ListActive(ctx, tenantID)
}

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/webhook-indexer/internal/models"
)

// Snapshot is a self-consistent, read-only view of all tenant configuration:
// databases, monitoring rules, and users. The dispatcher works entirely from
// one snapshot per event.
type Snapshot struct {
	Databases []*models.DatabaseConfig
	Settings  []*models.Setting
	Users     []*models.User

	databaseByID map[string]*models.DatabaseConfig
	userByID     map[string]*models.User
}

// NewSnapshot builds an indexed snapshot from its parts
func NewSnapshot(databases []*models.DatabaseConfig, settings []*models.Setting, users []*models.User) *Snapshot {
	s := &Snapshot{
		Databases: databases,
		Settings:  settings,
		Users:     users,
	}
	s.index()
	return s
}

// DatabaseByID looks up a tenant config in the snapshot
func (s *Snapshot) DatabaseByID(id string) (*models.DatabaseConfig, bool) {
	cfg, ok := s.databaseByID[id]
	return cfg, ok
}

// UserByID looks up a user in the snapshot
func (s *Snapshot) UserByID(id string) (*models.User, bool) {
	user, ok := s.userByID[id]
	return user, ok
}

func (s *Snapshot) index() {
	s.databaseByID = make(map[string]*models.DatabaseConfig, len(s.Databases))
	for _, cfg := range s.Databases {
		s.databaseByID[cfg.ID] = cfg
	}
	s.userByID = make(map[string]*models.User, len(s.Users))
	for _, user := range s.Users {
		s.userByID[user.ID] = user
	}
}

// SnapshotService loads configuration snapshots with a short in-memory TTL
// so per-event loads do not dominate dispatch latency. The service exposes
// no mutation surface; configuration is owned by the management plane.
type SnapshotService struct {
	databases *DatabaseRepository
	settings  *SettingRepository
	users     *UserRepository
	ttl       time.Duration

	mu        sync.Mutex
	cached    *Snapshot
	expiresAt time.Time
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(databases *DatabaseRepository, settings *SettingRepository, users *UserRepository, ttl time.Duration) *SnapshotService {
	return &SnapshotService{
		databases: databases,
		settings:  settings,
		users:     users,
		ttl:       ttl,
	}
}

// Load returns the current configuration snapshot, reusing a cached one
// while it is fresh.
func (s *SnapshotService) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Now().Before(s.expiresAt) {
		return s.cached, nil
	}

	databases, err := s.databases.List(ctx)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.List(ctx)
	if err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := NewSnapshot(databases, settings, users)

	s.cached = snapshot
	s.expiresAt = time.Now().Add(s.ttl)

	return snapshot, nil
}

// Invalidate drops the cached snapshot so the next Load reads fresh
func (s *SnapshotService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

package models

import (
	"time"

	"github.com/webhook-indexer/internal/types"
)

// DatabaseConfig holds the connection coordinates of one tenant database.
// The password is stored encrypted and decrypted only at connection time.
type DatabaseConfig struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Host        string        `json:"host"`
	Port        int           `json:"port"`
	Username    string        `json:"username"`
	PasswordEnc string        `json:"-"`
	Cluster     types.Cluster `json:"cluster"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// IndexSettings records per-tenant provisioning state. TableInitialized is
// set once after the first successful provisioning and gates whether
// provisioning is re-attempted.
type IndexSettings struct {
	ID               string `json:"id"`
	DatabaseID       string `json:"databaseId"`
	TableInitialized bool   `json:"tableInitialized"`
}

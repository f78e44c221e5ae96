package repository

import (
	"context"

	"github.com/basketfi/vaultcore/internal/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type vaultRow struct {
	ID          string `gorm:"primaryKey"`
	TotalSupply string
	Multiplier  string
}

func (vaultRow) TableName() string { return "vaults" }

type defaultPositionRow struct {
	VaultID     string `gorm:"primaryKey"`
	Component   string `gorm:"primaryKey"`
	VirtualUnit string
}

func (defaultPositionRow) TableName() string { return "default_positions" }

type externalPositionRow struct {
	VaultID     string `gorm:"primaryKey"`
	Component   string `gorm:"primaryKey"`
	Module      string `gorm:"primaryKey"`
	VirtualUnit string
	Data        []byte
}

func (externalPositionRow) TableName() string { return "external_positions" }

// PostgresVaultStore persists ledger snapshots. Each Save replaces the
// vault's position rows wholesale inside one transaction, so a restore
// always sees a consistent image.
type PostgresVaultStore struct {
	db *gorm.DB
}

func NewPostgresVaultStore(db *gorm.DB) (*PostgresVaultStore, error) {
	if err := db.AutoMigrate(&vaultRow{}, &defaultPositionRow{}, &externalPositionRow{}); err != nil {
		return nil, err
	}
	return &PostgresVaultStore{db: db}, nil
}

func (s *PostgresVaultStore) Save(ctx context.Context, snap *ledger.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := vaultRow{ID: snap.ID, TotalSupply: snap.TotalSupply, Multiplier: snap.Multiplier}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("vault_id = ?", snap.ID).Delete(&defaultPositionRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("vault_id = ?", snap.ID).Delete(&externalPositionRow{}).Error; err != nil {
			return err
		}
		for _, d := range snap.Defaults {
			if err := tx.Create(&defaultPositionRow{
				VaultID:     snap.ID,
				Component:   d.Component,
				VirtualUnit: d.VirtualUnit,
			}).Error; err != nil {
				return err
			}
		}
		for _, e := range snap.Externals {
			if err := tx.Create(&externalPositionRow{
				VaultID:     snap.ID,
				Component:   e.Component,
				Module:      e.Module,
				VirtualUnit: e.VirtualUnit,
				Data:        e.Data,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresVaultStore) LoadAll(ctx context.Context) ([]*ledger.Snapshot, error) {
	var vaults []vaultRow
	if err := s.db.WithContext(ctx).Find(&vaults).Error; err != nil {
		return nil, err
	}
	snaps := make([]*ledger.Snapshot, 0, len(vaults))
	for _, v := range vaults {
		snap := &ledger.Snapshot{ID: v.ID, TotalSupply: v.TotalSupply, Multiplier: v.Multiplier}

		var defaults []defaultPositionRow
		if err := s.db.WithContext(ctx).Where("vault_id = ?", v.ID).Find(&defaults).Error; err != nil {
			return nil, err
		}
		for _, d := range defaults {
			snap.Defaults = append(snap.Defaults, ledger.DefaultSnapshot{
				Component:   d.Component,
				VirtualUnit: d.VirtualUnit,
			})
		}

		var externals []externalPositionRow
		if err := s.db.WithContext(ctx).Where("vault_id = ?", v.ID).Find(&externals).Error; err != nil {
			return nil, err
		}
		for _, e := range externals {
			snap.Externals = append(snap.Externals, ledger.ExternalSnapshot{
				Component:   e.Component,
				Module:      e.Module,
				VirtualUnit: e.VirtualUnit,
				Data:        e.Data,
			})
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

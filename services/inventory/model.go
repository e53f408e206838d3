package inventory

import (
	"time"

	"progression-engine/pkg/taskname"

	"gorm.io/datatypes"
)

// Item is an owned instance of a catalog card. Items are append-only; only
// ImageURL is filled in later by the asset resolution task.
type Item struct {
	ID            string         `gorm:"column:id;primaryKey;size:32"`
	UserID        string         `gorm:"column:user_id;size:64;not null;index:idx_inventory_user_acquired,priority:1"`
	CardID        string         `gorm:"column:card_id;size:64;not null"`
	AssetID       string         `gorm:"column:asset_id;size:128"`
	Rarity        string         `gorm:"column:rarity;size:16;not null"`
	SourceType    SourceType     `gorm:"column:source_type;size:32;not null"`
	SourceContext datatypes.JSON `gorm:"column:source_context"`
	ImageURL      string         `gorm:"column:image_url;size:512;not null;default:''"`
	AcquiredAt    time.Time      `gorm:"column:acquired_at;index:idx_inventory_user_acquired,priority:2"`
}

func (Item) TableName() string { return "inventory_items" }

func (i *Item) Source() (Source, error) {
	return DecodeSource(i.SourceType, i.SourceContext)
}

// CardRef is the part of a catalog card an item keeps.
type CardRef struct {
	CardID  string
	AssetID string
	Rarity  string
}

const TypeResolveAsset = taskname.InventoryResolveAsset

type resolveAssetPayload struct {
	ItemID string `json:"item_id"`
}

package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lawdesk/internal/docstore"
)

// JSONB handles JSON data storage
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("unsupported type for JSONB")
	}
}

// DocumentRow is one stored record of the scoped document store
type DocumentRow struct {
	Namespace  string    `gorm:"primaryKey;column:namespace"`
	Collection string    `gorm:"primaryKey;column:collection"`
	ID         string    `gorm:"primaryKey;column:id"`
	Data       JSONB     `gorm:"column:data;type:jsonb;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

// TableName specifies the table name for the DocumentRow model
func (DocumentRow) TableName() string {
	return "documents"
}

func (r DocumentRow) document() docstore.Document {
	return docstore.Document{
		ID:        r.ID,
		Fields:    map[string]any(r.Data),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newDocumentRow(path docstore.Path, doc docstore.Document) DocumentRow {
	return DocumentRow{
		Namespace:  path.Namespace,
		Collection: path.Collection,
		ID:         doc.ID,
		Data:       JSONB(doc.Fields),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// DocumentManager is the Postgres docstore.Backend. Each namespace and
// collection pair is a slice of the documents table.
type DocumentManager struct {
	db *gorm.DB
}

var _ docstore.Backend = (*DocumentManager)(nil)

// NewDocumentManager creates a new DocumentManager instance
func NewDocumentManager(db *gorm.DB) *DocumentManager {
	return &DocumentManager{db: db}
}

func (m *DocumentManager) scoped(ctx context.Context, path docstore.Path) *gorm.DB {
	return m.db.WithContext(ctx).Where("namespace = ? AND collection = ?", path.Namespace, path.Collection)
}

func (m *DocumentManager) List(ctx context.Context, path docstore.Path) ([]docstore.Document, error) {
	var rows []DocumentRow
	if err := m.scoped(ctx, path).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.document())
	}
	return docs, nil
}

func (m *DocumentManager) Get(ctx context.Context, path docstore.Path, id string) (*docstore.Document, error) {
	var row DocumentRow
	err := m.scoped(ctx, path).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", path, id, err)
	}
	doc := row.document()
	return &doc, nil
}

// Put upserts the document. Creation time is kept on conflict.
func (m *DocumentManager) Put(ctx context.Context, path docstore.Path, doc docstore.Document) error {
	row := newDocumentRow(path, doc)
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", path, doc.ID, err)
	}
	return nil
}

func (m *DocumentManager) Delete(ctx context.Context, path docstore.Path, id string) error {
	res := m.scoped(ctx, path).Where("id = ?", id).Delete(&DocumentRow{})
	if res.Error != nil {
		return fmt.Errorf("delete %s/%s: %w", path, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Replace swaps the whole collection in one transaction.
func (m *DocumentManager) Replace(ctx context.Context, path docstore.Path, docs []docstore.Document) error {
	rows := make([]DocumentRow, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, newDocumentRow(path, doc))
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("namespace = ? AND collection = ?", path.Namespace, path.Collection).
			Delete(&DocumentRow{}).Error; err != nil {
			return err
		}
		return BulkCreate(tx, rows)
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/malbeclabs/mcp-llm-bridge/internal/store"
	sqltools "github.com/malbeclabs/mcp-llm-bridge/internal/tools/sql"
)

const DefaultPath = "test.db"

type Product struct {
	Title       string
	Description string
	Price       float64
	Category    string
	Stock       int
}

type Category struct {
	Name        string
	Description string
}

var Products = []Product{
	{"Laptop Pro X", "High-performance laptop with 16GB RAM", 1299.99, "Electronics", 50},
	{"Wireless Mouse", "Ergonomic wireless mouse", 29.99, "Electronics", 200},
	{"Coffee Maker", "12-cup programmable coffee maker", 79.99, "Appliances", 30},
	{"Running Shoes", "Lightweight running shoes", 89.99, "Sports", 100},
	{"Yoga Mat", "Non-slip exercise yoga mat", 24.99, "Sports", 150},
	{"Smart Watch", "Fitness tracking smart watch", 199.99, "Electronics", 75},
	{"Backpack", "Water-resistant hiking backpack", 49.99, "Outdoor", 120},
	{"Water Bottle", "Insulated stainless steel bottle", 19.99, "Outdoor", 200},
	{"Desk Lamp", "LED desk lamp with adjustable brightness", 39.99, "Home", 80},
	{"Bluetooth Speaker", "Portable wireless speaker", 69.99, "Electronics", 60},
	{"Plant Pot", "Ceramic indoor plant pot", 15.99, "Home", 100},
	{"Chair", "Ergonomic office chair", 199.99, "Furniture", 25},
	{"Notebook", "Hardcover ruled notebook", 9.99, "Stationery", 300},
	{"Paint Set", "Acrylic paint set with brushes", 34.99, "Art", 45},
	{"Headphones", "Noise-cancelling headphones", 159.99, "Electronics", 40},
}

var Categories = []Category{
	{"Electronics", "Electronic devices and accessories"},
	{"Appliances", "Home appliances"},
	{"Sports", "Sports and fitness equipment"},
	{"Outdoor", "Outdoor and hiking gear"},
	{"Home", "Home decor and accessories"},
	{"Furniture", "Home and office furniture"},
	{"Stationery", "Writing and office supplies"},
	{"Art", "Art supplies and materials"},
}

const createProductsTable = `
CREATE TABLE products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT,
	price REAL NOT NULL,
	category TEXT,
	stock INTEGER DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createCategoriesTable = `
CREATE TABLE categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	description TEXT
)`

type Result struct {
	Path       string
	Products   int
	Categories int
}

// Create writes the demo SQLite database at path, replacing any existing
// file.
func Create(ctx context.Context, log *slog.Logger, path string) (Result, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Result{}, fmt.Errorf("failed to remove existing database: %w", err)
	}

	db, err := store.New(store.Config{
		Logger: log,
		Driver: store.DriverSQLite,
		DSN:    path,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to create store: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, createProductsTable); err != nil {
		return Result{}, fmt.Errorf("failed to create products table: %w", err)
	}
	for _, p := range Products {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO products (title, description, price, category, stock) VALUES (?, ?, ?, ?, ?)",
			p.Title, p.Description, p.Price, p.Category, p.Stock,
		); err != nil {
			return Result{}, fmt.Errorf("failed to insert product %q: %w", p.Title, err)
		}
	}

	if _, err := tx.ExecContext(ctx, createCategoriesTable); err != nil {
		return Result{}, fmt.Errorf("failed to create categories table: %w", err)
	}
	for _, c := range Categories {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO categories (name, description) VALUES (?, ?)",
			c.Name, c.Description,
		); err != nil {
			return Result{}, fmt.Errorf("failed to insert category %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info("dataset: database created", "path", path, "products", len(Products), "categories", len(Categories))

	return Result{
		Path:       path,
		Products:   len(Products),
		Categories: len(Categories),
	}, nil
}

func ProductsSchema() sqltools.Schema {
	return sqltools.Schema{
		Table: "products",
		Columns: []sqltools.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "title", Type: "TEXT"},
			{Name: "description", Type: "TEXT"},
			{Name: "price", Type: "REAL"},
			{Name: "category", Type: "TEXT"},
			{Name: "stock", Type: "INTEGER"},
			{Name: "created_at", Type: "DATETIME"},
		},
		Description: "Product catalog with items for sale",
	}
}

func CategoriesSchema() sqltools.Schema {
	return sqltools.Schema{
		Table: "categories",
		Columns: []sqltools.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "name", Type: "TEXT"},
			{Name: "description", Type: "TEXT"},
		},
		Description: "Product categories",
	}
}

// DefaultSchemas returns the schemas registered when none are configured.
func DefaultSchemas() []sqltools.Schema {
	return []sqltools.Schema{ProductsSchema(), CategoriesSchema()}
}

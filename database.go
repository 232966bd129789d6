package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// getDataDir returns the OS-appropriate data directory for the app.
// If VISIONRELAY_DATA_DIR is set, it overrides the default location
// (useful for testing).
func getDataDir() (string, error) {
	if customDir := os.Getenv("VISIONRELAY_DATA_DIR"); customDir != "" {
		if err := os.MkdirAll(customDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create custom data directory: %w", err)
		}
		return customDir, nil
	}

	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support", "visionrelay")
	case "windows":
		baseDir = filepath.Join(os.Getenv("APPDATA"), "visionrelay")
	default: // Linux and others
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, ".config", "visionrelay")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return baseDir, nil
}

// openDB opens the SQLite database and ensures the schema exists.
func openDB() (*sql.DB, error) {
	dataDir, err := getDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ticks.db")
	log.Printf("Using database at: %s", dbPath)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Printf("Warning: Failed to enable WAL mode: %v", err)
	}

	if err := createSchema(db); err != nil {
		return nil, err
	}

	return db, nil
}

// createSchema creates the 'ticks' table if it doesn't exist.
func createSchema(db *sql.DB) error {
	createTableSQL := `
    CREATE TABLE IF NOT EXISTS ticks (
        id TEXT PRIMARY KEY,
        caption TEXT NOT NULL DEFAULT '',
        image BLOB,
        annotated BLOB,
        detections TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`

	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// startCleanupJob deletes ticks older than maxAge every minute.
func startCleanupJob(db *sql.DB, maxAge time.Duration) {
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for range ticker.C {
			cutoff := time.Now().Add(-maxAge).UTC()
			result, err := db.Exec("DELETE FROM ticks WHERE created_at <= ?", cutoff)
			if err != nil {
				log.Printf("Failed to delete expired ticks: %v\n", err)
			} else {
				rows, _ := result.RowsAffected()
				if rows > 0 {
					log.Printf("Cleaned up %d expired ticks\n", rows)
				}
			}
		}
	}()
}

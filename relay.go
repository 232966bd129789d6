package main

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"visionrelay/bridge"
)

// Relay receives inference results from the model server and serves
// them to polling clients. It is the Go rendition of the little relay
// script the captioning server used to push into.
type Relay struct {
	db     *sql.DB
	prompt *bridge.PromptClient // nil when no completion endpoint is configured
}

// NewRelay creates a relay over the given database. prompt may be nil.
func NewRelay(db *sql.DB, prompt *bridge.PromptClient) *Relay {
	return &Relay{db: db, prompt: prompt}
}

// Router builds the relay's route table.
func (rl *Relay) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/newTick", rl.handleNewTick).Methods("POST")
	r.HandleFunc("/objectDetect", rl.handleObjectDetect).Methods("POST")
	r.HandleFunc("/render/{id}", rl.handleRender).Methods("GET")
	r.HandleFunc("/render/{id}/image", rl.handleRenderImage).Methods("GET")
	r.HandleFunc("/ticks", rl.handleListTicks).Methods("GET")
	r.HandleFunc("/export", rl.handleExport).Methods("GET")
	if rl.prompt != nil {
		r.HandleFunc("/ask", rl.handleAsk).Methods("POST")
	}
	return r
}

// handleNewTick stores a caption tick: multipart field "image" plus
// form fields "caption" and "id". A missing id gets a fresh one.
func (rl *Relay) handleNewTick(w http.ResponseWriter, r *http.Request) {
	// 32 MB max memory for form parsing
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	id := r.FormValue("id")
	if id == "" {
		id = uuid.NewString()
	}
	caption := r.FormValue("caption")

	imageBytes, err := readFormImage(r)
	if err != nil {
		http.Error(w, "Missing or unreadable 'image' field", http.StatusBadRequest)
		return
	}

	_, err = rl.db.Exec(`
        INSERT INTO ticks (id, caption, image) VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET caption = excluded.caption, image = excluded.image`,
		id, caption, imageBytes)
	if err != nil {
		log.Printf("Failed to store tick %s: %v\n", id, err)
		http.Error(w, "Failed to store tick", http.StatusInternalServerError)
		return
	}

	log.Printf("Stored tick %s (%s): %q", id, humanize.Bytes(uint64(len(imageBytes))), caption)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// handleObjectDetect stores detection results for a tick and renders
// the annotated frame. A failed annotation is logged, not fatal; the
// detections are kept either way.
func (rl *Relay) handleObjectDetect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	id := r.FormValue("id")
	if id == "" {
		http.Error(w, "Missing 'id' field", http.StatusBadRequest)
		return
	}

	detectionsRaw := r.FormValue("detected_objects")
	detections, err := ParseDetections(detectionsRaw)
	if err != nil {
		http.Error(w, "Invalid 'detected_objects' payload", http.StatusBadRequest)
		return
	}

	imageBytes, err := readFormImage(r)
	if err != nil {
		http.Error(w, "Missing or unreadable 'image' field", http.StatusBadRequest)
		return
	}

	annotated, err := AnnotateImage(imageBytes, detections)
	if err != nil {
		log.Printf("Failed to annotate tick %s, keeping raw frame: %v\n", id, err)
		annotated = imageBytes
	}

	_, err = rl.db.Exec(`
        INSERT INTO ticks (id, annotated, detections) VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET annotated = excluded.annotated, detections = excluded.detections`,
		id, annotated, detectionsRaw)
	if err != nil {
		log.Printf("Failed to store detections for %s: %v\n", id, err)
		http.Error(w, "Failed to store detections", http.StatusInternalServerError)
		return
	}

	log.Printf("Stored %d detections for tick %s", len(detections), id)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Detections stored")
}

// renderTemplate is the page a polling client loads into its embedded
// browser.
var renderTemplate = template.Must(template.New("render").Parse(`<!DOCTYPE html>
<html>
<head><title>Tick {{.ID}}</title></head>
<body>
<p>{{.Caption}}</p>
{{if .HasImage}}<img src="/render/{{.ID}}/image" alt="annotated frame">{{end}}
</body>
</html>
`))

// handleRender serves the HTML page for a tick.
func (rl *Relay) handleRender(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var caption string
	var hasAnnotated, hasImage bool
	row := rl.db.QueryRow(
		"SELECT caption, annotated IS NOT NULL, image IS NOT NULL FROM ticks WHERE id = ?", id)
	if err := row.Scan(&caption, &hasAnnotated, &hasImage); err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Tick not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to load tick %s: %v\n", id, err)
		http.Error(w, "Failed to load tick", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	err := renderTemplate.Execute(w, struct {
		ID       string
		Caption  string
		HasImage bool
	}{ID: id, Caption: caption, HasImage: hasAnnotated || hasImage})
	if err != nil {
		log.Printf("Failed to render tick page %s: %v\n", id, err)
	}
}

// handleRenderImage serves the annotated frame, falling back to the
// raw one.
func (rl *Relay) handleRenderImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var annotated, raw []byte
	row := rl.db.QueryRow("SELECT annotated, image FROM ticks WHERE id = ?", id)
	if err := row.Scan(&annotated, &raw); err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Tick not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to load tick image %s: %v\n", id, err)
		http.Error(w, "Failed to load tick", http.StatusInternalServerError)
		return
	}

	data := annotated
	if len(data) == 0 {
		data = raw
	}
	if len(data) == 0 {
		http.Error(w, "Tick has no image", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// TickPreview is the struct for JSON responses in the tick listing.
type TickPreview struct {
	ID            string    `json:"id"`
	Caption       string    `json:"caption"`
	ImageSize     string    `json:"image_size"`
	HasDetections bool      `json:"has_detections"`
	CreatedAt     time.Time `json:"created_at"`
}

// handleListTicks returns the newest ticks, most recent first.
func (rl *Relay) handleListTicks(w http.ResponseWriter, r *http.Request) {
	query := `
    SELECT id, caption, LENGTH(COALESCE(image, '')), detections IS NOT NULL, created_at
    FROM ticks
    ORDER BY created_at DESC
    LIMIT 50`

	rows, err := rl.db.Query(query)
	if err != nil {
		log.Printf("Failed to query ticks: %v\n", err)
		http.Error(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	ticks := []TickPreview{}
	for rows.Next() {
		var tick TickPreview
		var imageSize int64
		if err := rows.Scan(&tick.ID, &tick.Caption, &imageSize, &tick.HasDetections, &tick.CreatedAt); err != nil {
			log.Printf("Failed to scan tick row: %v\n", err)
			continue
		}
		tick.ImageSize = humanize.Bytes(uint64(imageSize))
		ticks = append(ticks, tick)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ticks); err != nil {
		log.Printf("Failed to encode ticks to JSON: %v\n", err)
	}
}

// tickExport is the per-tick metadata entry in an export archive.
type tickExport struct {
	ID         string          `json:"id"`
	Caption    string          `json:"caption"`
	Detections json.RawMessage `json:"detections,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// handleExport streams a ZIP archive of all stored ticks: one PNG per
// tick plus a manifest with captions and detections.
func (rl *Relay) handleExport(w http.ResponseWriter, r *http.Request) {
	rows, err := rl.db.Query(
		"SELECT id, caption, image, annotated, detections, created_at FROM ticks ORDER BY created_at")
	if err != nil {
		log.Printf("Failed to query ticks for export: %v\n", err)
		http.Error(w, "Failed to retrieve ticks", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"ticks_%s.zip\"", time.Now().Format("20060102150405")))

	zw := zip.NewWriter(w)
	defer zw.Close()

	var manifest []tickExport
	for rows.Next() {
		var entry tickExport
		var image, annotated []byte
		var detections sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Caption, &image, &annotated, &detections, &entry.CreatedAt); err != nil {
			log.Printf("Failed to scan tick for export: %v\n", err)
			continue
		}
		if detections.Valid {
			entry.Detections = json.RawMessage(detections.String)
		}
		manifest = append(manifest, entry)

		data := annotated
		if len(data) == 0 {
			data = image
		}
		if len(data) == 0 {
			continue
		}

		f, err := zw.Create(entry.ID + ".png")
		if err != nil {
			log.Printf("Failed to create zip entry for %s: %v\n", entry.ID, err)
			continue
		}
		if _, err := f.Write(data); err != nil {
			log.Printf("Failed to write zip entry for %s: %v\n", entry.ID, err)
			continue
		}
	}

	mf, err := zw.Create("manifest.json")
	if err != nil {
		log.Printf("Failed to create export manifest: %v\n", err)
		return
	}
	if err := json.NewEncoder(mf).Encode(manifest); err != nil {
		log.Printf("Failed to write export manifest: %v\n", err)
	}
}

// handleAsk proxies a completion request to the configured prompt
// endpoint.
func (rl *Relay) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req bridge.PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Missing 'message'", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	answer, err := rl.prompt.Complete(ctx, req.Message)
	if err != nil {
		log.Printf("Completion failed: %v\n", err)
		http.Error(w, "Completion failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bridge.PromptResponse{Response: answer})
}

// readFormImage pulls the bytes of the multipart "image" field.
func readFormImage(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

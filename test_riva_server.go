package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// Standalone mock of the Riva speech endpoints for local testing. Run it,
// point RIVA_BASE_URL at http://localhost:9000 and exercise the service
// without a real inference backend.

type rivaResponse struct {
	Text        string    `json:"text"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"`
	ProcessedAt time.Time `json:"processed_at"`
}

func speechHandler(task, cannedText string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(128 << 20); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		language := r.FormValue("language")
		targetLanguage := r.FormValue("target_language")
		authorization := r.Header.Get("Authorization")

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		audioData, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading audio file", http.StatusInternalServerError)
			return
		}

		log.Printf("🎤 %s REQUEST RECEIVED:", task)
		log.Printf("  ═══════════════════════════════════")
		log.Printf("  🎧 Audio Info:")
		log.Printf("    Filename: %s", header.Filename)
		log.Printf("    Audio Size: %d bytes", len(audioData))
		log.Printf("    Content-Type: %s", header.Header.Get("Content-Type"))
		log.Printf("  ═══════════════════════════════════")
		log.Printf("  🌐 Language Info:")
		log.Printf("    Language: %s", language)
		if targetLanguage != "" {
			log.Printf("    Target Language: %s", targetLanguage)
		}
		log.Printf("  ═══════════════════════════════════")
		log.Printf("  🔑 Auth:")
		log.Printf("    Authorization present: %t", authorization != "")

		// Simulate processing time
		time.Sleep(200 * time.Millisecond)

		response := rivaResponse{
			Text:        cannedText,
			Language:    language,
			Duration:    float64(len(audioData)) / 32000, // 16kHz mono 16-bit
			ProcessedAt: time.Now(),
		}
		if task == "TRANSLATION" && targetLanguage != "" {
			response.Language = targetLanguage
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)

		log.Printf("✅ %s RESPONSE SENT: '%s'", task, response.Text)
		log.Println("---")
	}
}

func main() {
	http.HandleFunc("/audio/transcriptions", speechHandler("TRANSCRIPTION",
		"This is a canned transcription from the mock Riva server"))
	http.HandleFunc("/audio/translations", speechHandler("TRANSLATION",
		"This is a canned translation from the mock Riva server"))
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mock riva server"))
	})

	port := ":9000"
	log.Printf("🚀 Mock Riva Server starting on port %s", port)
	log.Printf("📡 Endpoints: http://localhost%s/audio/transcriptions, /audio/translations", port)
	log.Println("💡 Run the service with: RIVA_BASE_URL=http://localhost:9000")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}

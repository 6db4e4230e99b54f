package api

import (
	"bytes"
	"errors"
	"html/template"
	"image"
	"image/color"
	"image/gif"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/phishdrill/internal/metrics"
	"github.com/foxzi/phishdrill/internal/models"
	"github.com/foxzi/phishdrill/internal/store"
)

// TrackResponse is the response for the tracking callbacks
type TrackResponse struct {
	Success bool `json:"success"`
}

// pixelGIF is a transparent 1x1 image
var pixelGIF = func() []byte {
	img := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Transparent, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

var awarenessPage = template.Must(template.New("awareness").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>This was a phishing simulation</title>
<style>
body { font-family: sans-serif; max-width: 40em; margin: 4em auto; padding: 0 1em; color: #222; }
h1 { color: #b3261e; }
li { margin: .4em 0; }
</style>
</head>
<body>
<h1>This was a phishing simulation</h1>
<p>The link you followed was part of a security awareness exercise run by {{.Service}}. No data was collected beyond the fact that the link was opened.</p>
<p>Next time, before you click:</p>
<ul>
<li>Check the sender address, not just the display name.</li>
<li>Be wary of urgent requests for passwords, payments or personal details.</li>
<li>Hover over links to see where they really lead.</li>
<li>When in doubt, report the message to your security team.</li>
</ul>
</body>
</html>
`))

// handleTrack handles POST /api/campaigns/{id}/track/{action}
// and POST /api/campaigns/track/{id}/{action}
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	// an unknown action is an unknown endpoint whatever the id looks like
	action, ok := models.ParseTrackingAction(chi.URLParam(r, "action"))
	if !ok {
		s.sendError(w, http.StatusNotFound, "Endpoint not found")
		return
	}

	id, ok := urlID(r, "id")
	if !ok {
		s.sendError(w, http.StatusBadRequest, "Invalid Result ID")
		return
	}

	found, err := s.track(r, id, action)
	if err != nil {
		s.internalError(w, "failed to track action", err)
		return
	}
	if !found {
		s.sendError(w, http.StatusNotFound, "Result ID not found")
		return
	}

	s.sendJSON(w, http.StatusOK, TrackResponse{Success: true})
}

// handlePixel handles GET /t/{id}/open.gif. The image is served even for
// unknown results so mail clients never show a broken image.
func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	if id, ok := urlID(r, "id"); ok {
		if _, err := s.track(r, id, models.ActionOpen); err != nil {
			s.logger.Error("failed to record open", "result_id", id, "error", err)
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// handleClick handles GET /t/{id}/click
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	if id, ok := urlID(r, "id"); ok {
		if _, err := s.track(r, id, models.ActionClick); err != nil {
			s.logger.Error("failed to record click", "result_id", id, "error", err)
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	if s.info.LandingURL != "" {
		http.Redirect(w, r, s.info.LandingURL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := awarenessPage.Execute(w, s.info); err != nil {
		s.logger.Error("failed to render awareness page", "error", err)
	}
}

// track records action and counts it when the result exists
func (s *Server) track(r *http.Request, id int64, action models.TrackingAction) (bool, error) {
	found, err := s.store.TrackAction(r.Context(), id, action)
	if err != nil {
		if errors.Is(err, store.ErrInvalidAction) {
			return false, nil
		}
		return false, err
	}
	if found {
		metrics.IncTrackingEvent(string(action))
		s.logger.Info("interaction tracked", "result_id", id, "action", action)
	}
	return found, nil
}

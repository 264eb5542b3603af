package ingress

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/guide"
	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := map[string]any{}
	if a.health != nil {
		for name, err := range a.health(r.Context()) {
			entry := map[string]any{"healthy": err == nil}
			if err != nil {
				entry["error"] = err.Error()
				status = http.StatusServiceUnavailable
			}
			components[name] = entry
		}
	}
	body := map[string]any{"status": "ok", "components": components}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

type classifyRequest struct {
	Text string `json:"text"`
}

func (a *API) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tag := a.classifier.Classify(req.Text)
	writeJSON(w, http.StatusOK, map[string]string{"contentType": string(tag), "label": tag.Label()})
}

func (a *API) handleContentTypes(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Tag   content.Tag `json:"tag"`
		Label string      `json:"label"`
	}
	tags := content.Tags()
	out := make([]entry, len(tags))
	for i, t := range tags {
		out[i] = entry{Tag: t, Label: t.Label()}
	}
	writeJSON(w, http.StatusOK, out)
}

type createSessionRequest struct {
	Context     map[string]any `json:"context"`
	ContentType string         `json:"contentType"`
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	tag, err := parseOptionalTag(req.ContentType)
	if err != nil {
		writeError(w, err)
		return
	}

	s, err := a.sessions.Create(r.Context(), func(o *session.Options) {
		if len(req.Context) == 0 {
			return
		}
		if o.Context == nil {
			o.Context = dispatch.Context{}
		}
		for k, v := range req.Context {
			o.Context[k] = v
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if tag != "" {
		if err := s.SetContentType(r.Context(), tag); err != nil {
			writeError(w, err)
			return
		}
	}
	snap, err := s.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := a.sessions.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	snap, err := s.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Close(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Text        string `json:"text"`
	ContentType string `json:"contentType"`
}

type messageResponse struct {
	Status  string         `json:"status"`
	Turns   []session.Turn `json:"turns,omitempty"`
	Mode    session.Mode   `json:"mode,omitempty"`
	Staged  *guide.Plan    `json:"staged,omitempty"`
	Command string         `json:"command,omitempty"`
	Output  string         `json:"output,omitempty"`
}

func (a *API) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tag, err := parseOptionalTag(req.ContentType)
	if err != nil {
		writeError(w, err)
		return
	}
	s, ok := a.session(w, r)
	if !ok {
		return
	}

	if a.commands.CanHandle(req.Text) {
		out, err := a.commands.Execute(r.Context(), s, req.Text)
		status := http.StatusOK
		if err != nil {
			status = statusFor(err)
		}
		writeJSON(w, status, messageResponse{Status: "command", Command: strings.Fields(req.Text)[0], Output: out})
		return
	}

	var dedupeKey string
	if key := r.Header.Get("Idempotency-Key"); key != "" && a.dedupe != nil {
		dedupeKey = "message:" + s.ID() + ":" + key
		if prior, seen := a.dedupe.Remember(dedupeKey, pendingReply, a.opts.IdempotencyTTL); seen {
			a.replay(w, r, s, prior)
			return
		}
	}

	turns, err := s.Submit(r.Context(), session.Input{Text: req.Text, ContentType: tag})
	if err != nil {
		if dedupeKey != "" {
			a.dedupe.Forget(dedupeKey)
		}
		writeError(w, err)
		return
	}
	if dedupeKey != "" {
		ids := make([]string, len(turns))
		for i, t := range turns {
			ids[i] = t.ID
		}
		a.dedupe.Settle(dedupeKey, strings.Join(ids, ","), a.opts.IdempotencyTTL)
	}
	snap, err := s.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Status: "ok", Turns: turns, Mode: snap.Mode, Staged: snap.Staged})
}

// pendingReply marks a message key whose first delivery is still running.
const pendingReply = "pending"

// replay answers a retried message with the turns its first delivery
// produced, read back from the transcript.
func (a *API) replay(w http.ResponseWriter, r *http.Request, s *session.Session, prior string) {
	if prior == pendingReply {
		writeError(w, copyErrors.WrapWithCategory(errors.New("first delivery still in progress"), "replay message", copyErrors.ErrConflict))
		return
	}
	snap, err := s.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	wanted := make(map[string]bool)
	for _, id := range strings.Split(prior, ",") {
		wanted[id] = true
	}
	var turns []session.Turn
	for _, t := range snap.Transcript {
		if wanted[t.ID] {
			turns = append(turns, t)
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Status: "duplicate", Turns: turns, Mode: snap.Mode, Staged: snap.Staged})
}

type contentTypeRequest struct {
	ContentType string `json:"contentType"`
}

func (a *API) handleSetContentType(w http.ResponseWriter, r *http.Request) {
	var req contentTypeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	raw := req.ContentType
	if strings.EqualFold(raw, "auto") {
		raw = ""
	}
	tag, err := parseOptionalTag(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := s.SetContentType(r.Context(), tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contentType": string(tag)})
}

func (a *API) handleJobs(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	snap, err := s.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Jobs)
}

type saveRequest struct {
	Metadata vault.Metadata `json:"metadata"`
}

func (a *API) handleSaveItem(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	receipt, err := s.Save(r.Context(), mux.Vars(r)["itemID"], req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if receipt.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

func (a *API) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if a.library == nil {
		writeError(w, copyErrors.NotFound("no browsable content library configured"))
		return
	}
	q := r.URL.Query()
	limit := 20
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, copyErrors.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = n
	}

	var entries []vault.Entry
	var err error
	if query := strings.TrimSpace(q.Get("q")); query != "" {
		entries, err = a.library.Search(r.Context(), query, limit)
	} else {
		tag, tagErr := parseOptionalTag(q.Get("type"))
		if tagErr != nil {
			writeError(w, tagErr)
			return
		}
		entries, err = a.library.List(r.Context(), tag, limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []vault.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := a.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func parseOptionalTag(raw string) (content.Tag, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	tag, ok := content.ParseTag(raw)
	if !ok {
		return "", copyErrors.InvalidInput("unknown content type " + raw)
	}
	return tag, nil
}

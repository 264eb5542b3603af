package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/harunnryd/copydesk/internal/config"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/idempotency"

	"github.com/natefinch/atomic"
	"github.com/philippgille/chromem-go"
)

type Operation int

const (
	OpAppendTranscript Operation = iota
	OpReadTranscript
	OpSaveIdempotency
	OpGetSession
	OpSaveSession
	OpListSessions
	OpDeleteSession
	OpSaveLibraryRecord
	OpGetLibraryRecord
	OpListLibrary
	OpUpsertVector
	OpSearchVectors
)

type Request struct {
	Op       Operation
	Payload  interface{}
	Result   chan error
	Response chan interface{}
}

type TranscriptPayload struct {
	SessionID string
	Data      []byte // JSON line
}

type ReadTranscriptPayload struct {
	SessionID string
	Limit     int // 0 = all
}

type SessionIDPayload struct {
	SessionID string
}

type SaveSessionPayload struct {
	Session SessionMeta
}

type LibraryRecordPayload struct {
	Record LibraryRecord
}

type LibraryQueryPayload struct {
	ID          string
	ContentType string
	Limit       int
}

type UpsertVectorPayload struct {
	Collection string
	ID         string
	Vector     []float32
	Metadata   map[string]string
	Content    string
}

type SearchVectorsPayload struct {
	Collection string
	Vector     []float32
	Limit      int
}

// Worker owns every file in a workspace. All mutations go through its inbox
// and run on one goroutine; callers block on the reply channel.
type Worker struct {
	workspaceID              string
	basePath                 string
	inbox                    chan Request
	idemStore                *idempotency.Store
	fileLock                 *FileLock
	quit                     chan struct{}
	wg                       sync.WaitGroup
	sessionIndex             *SessionIndex
	library                  *LibraryIndex
	vectorDB                 *chromem.DB
	running                  stdatomic.Bool
	stopOnce                 sync.Once
	transcriptRotateMaxBytes int64
}

type RuntimeConfig struct {
	LockTimeout              time.Duration
	LockRetry                time.Duration
	LockMaxRetry             int
	InboxSize                int
	TranscriptRotateMaxBytes int64
}

// RuntimeConfigFromConfig parses the store section.
func RuntimeConfigFromConfig(cfg config.StoreConfig) (RuntimeConfig, error) {
	lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("invalid store.lock_timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("invalid store.lock_retry: %w", err)
	}
	return RuntimeConfig{
		LockTimeout:              lockTimeout,
		LockRetry:                lockRetry,
		LockMaxRetry:             cfg.LockMaxRetry,
		InboxSize:                cfg.InboxSize,
		TranscriptRotateMaxBytes: cfg.TranscriptRotateMaxBytes,
	}, nil
}

func NewWorker(workspaceID string, workspaceRootPath string, runtimeCfg RuntimeConfig) (*Worker, error) {
	basePath, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return nil, err
	}

	for _, d := range []string{sessionsDir(basePath), libraryDir(basePath), governanceDir(basePath), vectorsDir(basePath)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", d, err)
		}
	}

	if runtimeCfg.LockTimeout <= 0 || runtimeCfg.LockRetry <= 0 {
		defaults, err := RuntimeConfigFromConfig(config.StoreConfig{})
		if err != nil {
			return nil, err
		}
		if runtimeCfg.LockTimeout <= 0 {
			runtimeCfg.LockTimeout = defaults.LockTimeout
		}
		if runtimeCfg.LockRetry <= 0 {
			runtimeCfg.LockRetry = defaults.LockRetry
		}
	}
	if runtimeCfg.LockMaxRetry <= 0 {
		runtimeCfg.LockMaxRetry = config.DefaultStoreLockMaxRetry
	}
	if runtimeCfg.InboxSize <= 0 {
		runtimeCfg.InboxSize = config.DefaultStoreInboxSize
	}
	if runtimeCfg.TranscriptRotateMaxBytes <= 0 {
		runtimeCfg.TranscriptRotateMaxBytes = config.DefaultStoreTranscriptRotateMaxBytes
	}

	// One process per workspace.
	fileLock, err := NewFileLock(workspaceID, basePath, &FileLockConfig{
		LockTimeout:  runtimeCfg.LockTimeout,
		LockRetry:    runtimeCfg.LockRetry,
		LockMaxRetry: runtimeCfg.LockMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	idemStore, err := idempotency.NewStore(idempotencyPath(basePath))
	if err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("failed to load idempotency store: %w", err)
	}

	sessionIndex := &SessionIndex{Sessions: make(map[string]SessionMeta)}
	loadJSON(sessionIndexPath(basePath), sessionIndex)
	if sessionIndex.Sessions == nil {
		sessionIndex.Sessions = make(map[string]SessionMeta)
	}

	library := &LibraryIndex{Records: make(map[string]LibraryRecord)}
	loadJSON(libraryIndexPath(basePath), library)
	if library.Records == nil {
		library.Records = make(map[string]LibraryRecord)
	}

	// Embeddings are supplied by callers, so collections carry no embedding func.
	vectorDB, err := chromem.NewPersistentDB(vectorsDir(basePath), false)
	if err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("failed to init vector db: %w", err)
	}

	return &Worker{
		workspaceID:              workspaceID,
		basePath:                 basePath,
		inbox:                    make(chan Request, runtimeCfg.InboxSize),
		idemStore:                idemStore,
		fileLock:                 fileLock,
		quit:                     make(chan struct{}),
		sessionIndex:             sessionIndex,
		library:                  library,
		vectorDB:                 vectorDB,
		transcriptRotateMaxBytes: runtimeCfg.TranscriptRotateMaxBytes,
	}, nil
}

func loadJSON(path string, into any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, into); err != nil {
		slog.Warn("Failed to parse index, starting fresh", "path", path, "error", err)
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) loop() {
	slog.Info("StoreWorker started", "workspace", w.workspaceID)
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		w.wg.Done()
	}()

	if pruned := w.idemStore.Prune(); pruned > 0 {
		slog.Info("Pruned expired idempotency keys", "count", pruned)
		if err := w.idemStore.Save(); err != nil {
			slog.Error("Failed to save pruned keys", "error", err)
		}
	}

	for {
		select {
		case req := <-w.inbox:
			err := w.handle(req)
			if req.Result != nil {
				req.Result <- err
			}
		case <-w.quit:
			slog.Info("StoreWorker stopping")
			return
		}
	}
}

func (w *Worker) handle(req Request) error {
	switch req.Op {
	case OpAppendTranscript:
		p, ok := req.Payload.(TranscriptPayload)
		if !ok {
			return fmt.Errorf("invalid payload for AppendTranscript")
		}
		return w.appendTranscript(p.SessionID, p.Data)
	case OpReadTranscript:
		p, ok := req.Payload.(ReadTranscriptPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ReadTranscript")
		}
		lines, err := w.readTranscript(p.SessionID, p.Limit)
		reply(req, lines)
		return err
	case OpSaveIdempotency:
		return w.idemStore.Save()
	case OpGetSession:
		p, ok := req.Payload.(SessionIDPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetSession")
		}
		if sess, ok := w.sessionIndex.Sessions[p.SessionID]; ok {
			reply(req, &sess)
		} else {
			reply(req, (*SessionMeta)(nil))
		}
		return nil
	case OpSaveSession:
		p, ok := req.Payload.(SaveSessionPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveSession")
		}
		w.sessionIndex.Sessions[p.Session.ID] = p.Session
		return w.writeIndex(sessionIndexPath(w.basePath), w.sessionIndex)
	case OpListSessions:
		reply(req, w.listSessions())
		return nil
	case OpDeleteSession:
		p, ok := req.Payload.(SessionIDPayload)
		if !ok {
			return fmt.Errorf("invalid payload for DeleteSession")
		}
		return w.deleteSession(p.SessionID)
	case OpSaveLibraryRecord:
		p, ok := req.Payload.(LibraryRecordPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveLibraryRecord")
		}
		w.library.Records[p.Record.ID] = p.Record
		return w.writeIndex(libraryIndexPath(w.basePath), w.library)
	case OpGetLibraryRecord:
		p, ok := req.Payload.(LibraryQueryPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetLibraryRecord")
		}
		rec, ok := w.library.Records[p.ID]
		if !ok {
			reply(req, (*LibraryRecord)(nil))
			return copyErrors.NotFound(fmt.Sprintf("library record %s", p.ID))
		}
		reply(req, &rec)
		return nil
	case OpListLibrary:
		p, ok := req.Payload.(LibraryQueryPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ListLibrary")
		}
		reply(req, w.listLibrary(p.ContentType, p.Limit))
		return nil
	case OpUpsertVector:
		p, ok := req.Payload.(UpsertVectorPayload)
		if !ok {
			return fmt.Errorf("invalid payload for UpsertVector")
		}
		return w.upsertVector(p)
	case OpSearchVectors:
		p, ok := req.Payload.(SearchVectorsPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SearchVectors")
		}
		res, err := w.searchVectors(p)
		reply(req, res)
		return err
	default:
		return fmt.Errorf("unknown operation: %d", req.Op)
	}
}

func reply(req Request, v interface{}) {
	if req.Response != nil {
		req.Response <- v
	}
}

func (w *Worker) readTranscript(sessionID string, limit int) ([]string, error) {
	data, err := os.ReadFile(transcriptPath(w.basePath, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return []string{}, nil
	}
	lines := strings.Split(trimmed, "\n")

	if limit > 0 && len(lines) > limit {
		return lines[len(lines)-limit:], nil
	}
	return lines, nil
}

func (w *Worker) listSessions() []SessionMeta {
	out := make([]SessionMeta, 0, len(w.sessionIndex.Sessions))
	for _, s := range w.sessionIndex.Sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (w *Worker) deleteSession(sessionID string) error {
	if err := os.Remove(transcriptPath(w.basePath, sessionID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	delete(w.sessionIndex.Sessions, sessionID)
	return w.writeIndex(sessionIndexPath(w.basePath), w.sessionIndex)
}

func (w *Worker) listLibrary(contentType string, limit int) []LibraryRecord {
	out := make([]LibraryRecord, 0, len(w.library.Records))
	for _, r := range w.library.Records {
		if contentType != "" && r.ContentType != contentType {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (w *Worker) upsertVector(p UpsertVectorPayload) error {
	col, err := w.vectorDB.GetOrCreateCollection(p.Collection, nil, nil)
	if err != nil {
		return err
	}
	// AddDocuments is upsert in chromem
	return col.AddDocuments(context.Background(), []chromem.Document{
		{
			ID:        p.ID,
			Metadata:  p.Metadata,
			Embedding: p.Vector,
			Content:   p.Content,
		},
	}, 1)
}

func (w *Worker) searchVectors(p SearchVectorsPayload) ([]VectorResult, error) {
	col := w.vectorDB.GetCollection(p.Collection, nil)
	if col == nil {
		return []VectorResult{}, nil
	}

	limit := p.Limit
	if count := col.Count(); limit <= 0 || limit > count {
		limit = count
	}
	if limit == 0 {
		return []VectorResult{}, nil
	}

	docs, err := col.QueryEmbedding(context.Background(), p.Vector, limit, nil, nil)
	if err != nil {
		return nil, err
	}

	results := make([]VectorResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, VectorResult{
			ID:       doc.ID,
			Score:    doc.Similarity,
			Metadata: doc.Metadata,
			Content:  doc.Content,
		})
	}
	return results, nil
}

func (w *Worker) writeIndex(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func (w *Worker) appendTranscript(sessionID string, data []byte) error {
	path := transcriptPath(w.basePath, sessionID)

	if err := w.checkAndRotate(sessionID, path); err != nil {
		slog.Warn("Failed to rotate transcript", "session", sessionID, "error", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	return f.Sync()
}

func (w *Worker) checkAndRotate(sessionID, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < w.transcriptRotateMaxBytes {
		return nil
	}

	slog.Info("Rotating transcript", "session", sessionID, "size", info.Size())

	backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102150405"))
	if err := os.Rename(path, backupPath); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// send enqueues req unless the worker is stopping.
func (w *Worker) send(req Request) error {
	select {
	case w.inbox <- req:
	case <-w.quit:
		return copyErrors.Closed("store worker stopped")
	}
	if req.Result == nil {
		return nil
	}
	select {
	case err := <-req.Result:
		return err
	case <-w.quit:
		return copyErrors.Closed("store worker stopped")
	}
}

func (w *Worker) call(op Operation, payload interface{}) (interface{}, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	if err := w.send(Request{Op: op, Payload: payload, Result: res, Response: resp}); err != nil {
		return nil, err
	}
	select {
	case v := <-resp:
		return v, nil
	default:
		return nil, nil
	}
}

// Public API for other components

func (w *Worker) AppendTranscript(sessionID string, data []byte) error {
	return w.send(Request{
		Op:      OpAppendTranscript,
		Payload: TranscriptPayload{SessionID: sessionID, Data: data},
		Result:  make(chan error, 1),
	})
}

func (w *Worker) ReadTranscript(sessionID string, limit int) ([]string, error) {
	v, err := w.call(OpReadTranscript, ReadTranscriptPayload{SessionID: sessionID, Limit: limit})
	if err != nil {
		return nil, err
	}
	lines, _ := v.([]string)
	return lines, nil
}

// GetSession returns nil, nil when the session is unknown.
func (w *Worker) GetSession(id string) (*SessionMeta, error) {
	v, err := w.call(OpGetSession, SessionIDPayload{SessionID: id})
	if err != nil {
		return nil, err
	}
	sess, _ := v.(*SessionMeta)
	return sess, nil
}

func (w *Worker) SaveSession(session SessionMeta) error {
	return w.send(Request{Op: OpSaveSession, Payload: SaveSessionPayload{Session: session}, Result: make(chan error, 1)})
}

// ListSessions returns the index, most recently updated first.
func (w *Worker) ListSessions() ([]SessionMeta, error) {
	v, err := w.call(OpListSessions, nil)
	if err != nil {
		return nil, err
	}
	sessions, _ := v.([]SessionMeta)
	return sessions, nil
}

func (w *Worker) DeleteSession(sessionID string) error {
	return w.send(Request{Op: OpDeleteSession, Payload: SessionIDPayload{SessionID: sessionID}, Result: make(chan error, 1)})
}

func (w *Worker) SaveLibraryRecord(rec LibraryRecord) error {
	return w.send(Request{Op: OpSaveLibraryRecord, Payload: LibraryRecordPayload{Record: rec}, Result: make(chan error, 1)})
}

func (w *Worker) GetLibraryRecord(id string) (*LibraryRecord, error) {
	v, err := w.call(OpGetLibraryRecord, LibraryQueryPayload{ID: id})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*LibraryRecord)
	return rec, nil
}

// ListLibrary returns saved records, newest first, optionally filtered by
// content type.
func (w *Worker) ListLibrary(contentType string, limit int) ([]LibraryRecord, error) {
	v, err := w.call(OpListLibrary, LibraryQueryPayload{ContentType: contentType, Limit: limit})
	if err != nil {
		return nil, err
	}
	recs, _ := v.([]LibraryRecord)
	return recs, nil
}

func (w *Worker) UpsertVector(collection, id string, vector []float32, metadata map[string]string, content string) error {
	return w.send(Request{
		Op: OpUpsertVector,
		Payload: UpsertVectorPayload{
			Collection: collection,
			ID:         id,
			Vector:     vector,
			Metadata:   metadata,
			Content:    content,
		},
		Result: make(chan error, 1),
	})
}

func (w *Worker) SearchVectors(collection string, vector []float32, limit int) ([]VectorResult, error) {
	v, err := w.call(OpSearchVectors, SearchVectorsPayload{Collection: collection, Vector: vector, Limit: limit})
	if err != nil {
		return nil, err
	}
	results, _ := v.([]VectorResult)
	return results, nil
}

// Remember records value under key for ttl unless a live entry exists, in
// which case the existing value wins. Persistence is queued on the worker.
func (w *Worker) Remember(key, value string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		ttl, _ = config.DurationOrDefault("", config.DefaultVaultIdempotencyTTL)
	}
	stored, existed := w.idemStore.Remember(key, value, ttl)
	if !existed {
		w.queueIdempotencySave()
	}
	return stored, existed
}

// Settle replaces the value remembered under key, typically a placeholder
// claimed with Remember before the guarded work finished.
func (w *Worker) Settle(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl, _ = config.DurationOrDefault("", config.DefaultVaultIdempotencyTTL)
	}
	w.idemStore.Settle(key, value, ttl)
	w.queueIdempotencySave()
}

// Forget drops an idempotency key.
func (w *Worker) Forget(key string) {
	w.idemStore.Forget(key)
	w.queueIdempotencySave()
}

func (w *Worker) queueIdempotencySave() {
	select {
	case w.inbox <- Request{Op: OpSaveIdempotency}:
	case <-w.quit:
	default:
		slog.Warn("Store inbox full, idempotency save deferred")
	}
}

func (w *Worker) SaveIdempotencySync() error {
	return w.send(Request{Op: OpSaveIdempotency, Result: make(chan error, 1)})
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		slog.Info("StoreWorker Stop called", "workspace", w.workspaceID, "lock_held", w.fileLock.IsLocked())

		close(w.quit)
		w.wg.Wait()

		if err := w.idemStore.Save(); err != nil {
			slog.Warn("Failed to flush idempotency keys", "error", err)
		}
		if w.fileLock.IsLocked() {
			w.fileLock.Unlock()
		}
	})
}

func (w *Worker) BasePath() string {
	return w.basePath
}

func (w *Worker) IsLockHeld() bool {
	return w.fileLock.IsLocked()
}

func (w *Worker) IsRunning() bool {
	return w.fileLock.IsLocked() && w.running.Load()
}

// Package handlers implements the HTTP surface of the PKTO control
// plane: one endpoint per spec §6 entry point, plus diagnostics.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/pkto/pkg/audit"
	"github.com/mnohosten/pkto/pkg/metrics"
	"github.com/mnohosten/pkto/pkg/stm"
)

// Handlers holds everything a request handler needs: the runtime
// itself, a registry mapping transaction ids (which, unlike the
// in-process *stm.Transaction, are safe to hand to an HTTP client) back
// to their live descriptors, and the ambient collectors/loggers/hub
// wired in by pkg/server.
type Handlers struct {
	rt        *stm.Runtime
	collector *metrics.MetricsCollector
	auditor   *audit.AuditLogger
	hub       *Hub

	mu  sync.RWMutex
	txs map[stm.TxID]*stm.Transaction
}

// New creates a Handlers bound to rt and its ambient collaborators.
func New(rt *stm.Runtime, collector *metrics.MetricsCollector, auditor *audit.AuditLogger, hub *Hub) *Handlers {
	return &Handlers{
		rt:        rt,
		collector: collector,
		auditor:   auditor,
		hub:       hub,
		txs:       make(map[stm.TxID]*stm.Transaction),
	}
}

func principal(r *http.Request) string {
	if p, ok := r.Context().Value(PrincipalKey{}).(string); ok && p != "" {
		return p
	}
	return "anonymous"
}

// PrincipalKey is the context key pkg/server's auth middleware stores
// a verified token's principal under.
type PrincipalKey struct{}

// WithPrincipal returns a copy of ctx carrying principal under
// PrincipalKey, for pkg/server's auth middleware to attach the
// verified identity of a request before it reaches a Handlers method.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey{}, principal)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": message})
}

// txFromPath resolves the {id} path parameter to a live transaction.
func (h *Handlers) txFromPath(r *http.Request) (*stm.Transaction, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	tx, ok := h.txs[stm.TxID(id)]
	return tx, ok
}

// beginRequest is the optional POST /tx body: retryOf carries the
// g_its of a transaction that previously aborted, inheriting its
// priority on the new attempt (spec §6 tbegin retry convention).
type beginRequest struct {
	RetryOf stm.TxID `json:"retryOf,omitempty"`
}

// Begin handles POST /tx.
func (h *Handlers) Begin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req beginRequest
	if r.ContentLength != 0 {
		json.NewDecoder(r.Body).Decode(&req) // absent/empty body means a fresh attempt
	}

	its := stm.NilTimestamp
	if req.RetryOf != 0 {
		its = req.RetryOf
	}

	tx, err := h.rt.Begin(its)
	h.auditor.LogBegin(tx, principal(r), time.Since(start), err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.mu.Lock()
	h.txs[tx.ID] = tx
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":   true,
		"id":   tx.ID,
		"gits": tx.GITS,
		"gcts": tx.GCTS,
	})
}

type readRequest struct {
	Tobj int `json:"tobj"`
}

// Read handles POST /tx/{id}/read.
func (h *Handlers) Read(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.txFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown transaction")
		return
	}

	var req readRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	val, status, err := h.rt.Read(tx, req.Tobj)
	duration := time.Since(start)

	h.collector.RecordRead(duration, status == stm.Aborted)
	h.auditor.LogRead(tx, req.Tobj, principal(r), status, duration, err)

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"status": status.String(),
		"value":  val,
	})
}

type writeRequest struct {
	Tobj  int         `json:"tobj"`
	Value interface{} `json:"value"`
}

// Write handles POST /tx/{id}/write.
func (h *Handlers) Write(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.txFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown transaction")
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	status, err := h.rt.Write(tx, req.Tobj, req.Value)
	duration := time.Since(start)

	h.collector.RecordWrite(duration)
	h.auditor.LogWrite(tx, req.Tobj, principal(r), status, duration, err)

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "status": status.String()})
}

// Commit handles POST /tx/{id}/commit.
func (h *Handlers) Commit(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.txFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown transaction")
		return
	}

	start := time.Now()
	status, err := h.rt.TryCommit(tx)
	duration := time.Since(start)

	h.collector.RecordCommit(duration)

	abortClass := ""
	if status == stm.Aborted && err == nil {
		abortClass = "priority_loss_or_invalidated"
	}
	h.auditor.LogCommit(tx, principal(r), status, abortClass, duration, err)

	h.mu.Lock()
	delete(h.txs, tx.ID)
	h.mu.Unlock()

	eventType := EventCommit
	if status == stm.Aborted {
		eventType = EventAbort
	}
	h.hub.Broadcast(TxEvent{
		Type:       eventType,
		Timestamp:  time.Now(),
		TxID:       tx.ID,
		GITS:       tx.GITS,
		GCTS:       tx.GCTS,
		Status:     status.String(),
		AbortClass: abortClass,
	})

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "status": status.String()})
}

// Abort handles POST /tx/{id}/abort.
func (h *Handlers) Abort(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.txFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown transaction")
		return
	}

	start := time.Now()
	status, err := h.rt.Abort(tx)
	duration := time.Since(start)

	h.auditor.LogAbort(tx, principal(r), duration, err)

	h.mu.Lock()
	delete(h.txs, tx.ID)
	h.mu.Unlock()

	h.hub.Broadcast(TxEvent{
		Type:       EventAbort,
		Timestamp:  time.Now(),
		TxID:       tx.ID,
		GITS:       tx.GITS,
		GCTS:       tx.GCTS,
		Status:     status.String(),
		AbortClass: "explicit",
	})

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "status": status.String()})
}

// Health returns a handler reporting uptime since start.
func (h *Handlers) Health(start time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok": true,
			"result": map[string]interface{}{
				"status":        "healthy",
				"uptimeSeconds": time.Since(start).Seconds(),
				"tobjCount":     h.rt.Size(),
			},
		})
	}
}

// Stats handles GET /stats: the protocol's own counters plus the
// control plane's latency collector.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"runtime": h.rt.Stats(),
		"control": h.collector.GetMetrics(),
	})
}

// Views returns a live snapshot of every tobj, for /snapshot to
// marshal and compress.
func (h *Handlers) Views() []stm.TobjView {
	return h.rt.Views()
}

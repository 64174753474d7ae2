// Package vdfsapi exposes a node's control-plane surface over HTTP:
// cluster membership and health plus streaming file-service
// operations. Request/response shapes mirror the control-plane
// contract named by the system's design notes.
package vdfsapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/librorum/vdfs/internal/config"
	vcrypto "github.com/librorum/vdfs/internal/crypto"
	"github.com/librorum/vdfs/internal/discovery"
	"github.com/librorum/vdfs/internal/metadata"
	"github.com/librorum/vdfs/internal/node"
	"github.com/librorum/vdfs/internal/observability"
	"github.com/librorum/vdfs/internal/ratelimit"
)

// HTTP contract types.

type (
	HeartbeatResponse struct {
		NodeID        string `json:"node_id"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}

	PeerJSON struct {
		NodeID        string  `json:"node_id"`
		Status        string  `json:"status"`
		LatencyMillis float64 `json:"latency_ms"`
		FailureCount  int     `json:"failure_count"`
	}
	GetNodeListResponse struct {
		Peers []PeerJSON `json:"peers"`
	}

	GetSystemHealthResponse struct {
		NodeID       string `json:"node_id"`
		TotalFiles   int    `json:"total_files"`
		TotalChunks  int    `json:"total_chunks"`
		BytesStored  int64  `json:"bytes_stored"`
		CacheDirty   int    `json:"cache_dirty"`
		PeersOnline  int    `json:"peers_online"`
		PeersOffline int    `json:"peers_offline"`
	}

	AddNodeRequest struct {
		NodeID  string `json:"node_id"`
		Address string `json:"address"`
		Port    int    `json:"port"`
	}

	FileInfoJSON struct {
		Path       string `json:"path"`
		Size       int64  `json:"size"`
		ModifiedAt int64  `json:"modified_at"`
		MerkleRoot string `json:"merkle_root"`
		Domain     string `json:"domain,omitempty"`
		Mode       uint32 `json:"mode"`
	}
	ListFilesResponse struct {
		Entries []DirEntryJSON `json:"entries"`
	}
	DirEntryJSON struct {
		Name  string        `json:"name"`
		IsDir bool          `json:"is_dir"`
		Info  *FileInfoJSON `json:"info,omitempty"`
	}

	CreateDirectoryRequest struct {
		Path string `json:"path"`
	}

	GetSyncStatusResponse struct {
		NodeID      string `json:"node_id"`
		TotalFiles  int    `json:"total_files"`
		TotalChunks int    `json:"total_chunks"`
		CacheDirty  int    `json:"cache_dirty"`
	}

	VerifyFileResponse struct {
		vcrypto.VerificationMessage
	}

	JSONError struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

// Server binds a node to the control-plane HTTP contract.
type Server struct {
	node       *node.Node
	logger     *observability.Logger
	metrics    *observability.Metrics
	uploadRate *ratelimit.TokenBucket
	http       *http.Server
}

// NewServer builds a Server over n; call ListenAndServe to bind. cfg
// supplies the upload rate limit, the same shape as the daemon's
// connection-accept limiter.
func NewServer(n *node.Node, cfg config.Config, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		node:       n,
		logger:     logger,
		metrics:    metrics,
		uploadRate: ratelimit.NewTokenBucket(cfg.UploadRateLimit, cfg.UploadBurst),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/heartbeat", s.handleHeartbeat).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/nodes", s.handleGetNodeList).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/nodes", s.handleAddNode).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/nodes/{node_id}", s.handleRemoveNode).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/system/health", s.handleGetSystemHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/system/sync-status", s.handleGetSyncStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/files", s.handleListFiles).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/files/info", s.handleGetFileInfo).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/files/verify", s.handleVerifyFile).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/files/upload", s.handleUploadFile).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/files/download", s.handleDownloadFile).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/files/delete", s.handleDeleteFile).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/directories", s.handleCreateDirectory).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/directories", s.handleRemoveDirectory).Methods(http.MethodDelete)

	s.http = &http.Server{Handler: r}
	return s
}

// ListenAndServe binds and serves the control-plane surface on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.http.Addr = addr
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, uptime := s.node.Heartbeat()
	writeJSON(w, http.StatusOK, HeartbeatResponse{NodeID: id, UptimeSeconds: uptime})
}

func (s *Server) handleGetNodeList(w http.ResponseWriter, r *http.Request) {
	peers := s.node.Peers()
	resp := GetNodeListResponse{Peers: make([]PeerJSON, 0, len(peers))}
	for _, p := range peers {
		resp.Peers = append(resp.Peers, PeerJSON{
			NodeID: string(p.NodeID), Status: p.Status.String(),
			LatencyMillis: p.LatencyMillis, FailureCount: p.FailureCount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid JSON body")
		return
	}
	if !discovery.NodeID(req.NodeID).Valid() {
		writeJSONError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "node_id is not a well-formed NodeId")
		return
	}
	s.node.AddPeer(req.NodeID, req.Address, req.Port)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["node_id"]
	s.node.RemovePeer(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSystemHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.node.Stats()
	writeJSON(w, http.StatusOK, GetSystemHealthResponse{
		NodeID: stats.NodeID, TotalFiles: stats.TotalFiles, TotalChunks: stats.TotalChunks,
		BytesStored: stats.BytesStored, CacheDirty: stats.CacheDirty,
		PeersOnline: stats.PeersOnline, PeersOffline: stats.PeersOffline,
	})
}

func (s *Server) handleGetSyncStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.node.Stats()
	writeJSON(w, http.StatusOK, GetSyncStatusResponse{
		NodeID: stats.NodeID, TotalFiles: stats.TotalFiles,
		TotalChunks: stats.TotalChunks, CacheDirty: stats.CacheDirty,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = "/"
	}
	entries, err := s.node.ListDirectory(dir)
	if err != nil {
		writeErrForLookup(w, err)
		return
	}
	resp := ListFilesResponse{Entries: make([]DirEntryJSON, 0, len(entries))}
	for _, e := range entries {
		entry := DirEntryJSON{Name: e.Name, IsDir: e.IsDir}
		if e.Info != nil {
			entry.Info = toFileInfoJSON(e.Info)
		}
		resp.Entries = append(resp.Entries, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFileInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	info, err := s.node.GetMetadata(path)
	if err != nil {
		writeErrForLookup(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileInfoJSON(info))
}

// handleVerifyFile returns a signed attestation that this node holds
// path with its currently recorded Merkle root. Only available when
// the node was started with verification signing enabled.
func (s *Server) handleVerifyFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "path is required")
		return
	}
	msg, err := s.node.SignVerification(path)
	if err != nil {
		if errors.Is(err, node.ErrVerificationDisabled) {
			writeJSONError(w, http.StatusNotImplemented, "NOT_ENABLED", err.Error())
			return
		}
		writeErrForLookup(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyFileResponse{VerificationMessage: *msg})
}

// handleUploadFile accepts a file's bytes in the request body and
// creates or overwrites the target path, named by the "path" query
// parameter. The whole body is read into memory and written through
// node.WriteFile; no transport link to a peer is involved.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "path is required")
		return
	}
	if !s.uploadRate.Allow(1) {
		writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "upload rate limit exceeded")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "failed to read body: "+err.Error())
		return
	}

	info, err := s.node.WriteFile(path, data)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if s.logger != nil {
		s.logger.WithPath(path, info.Size).Info("file uploaded")
	}
	writeJSON(w, http.StatusOK, toFileInfoJSON(info))
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	data, err := s.node.ReadFile(path)
	if err != nil {
		writeErrForLookup(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := s.node.DeleteFile(path); err != nil {
		writeErrForLookup(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid JSON body")
		return
	}
	if err := s.node.CreateDirectory(req.Path); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "path is required")
		return
	}
	if err := s.node.RemoveDirectory(path); err != nil {
		if errors.Is(err, metadata.ErrDirectoryNotEmpty) {
			writeJSONError(w, http.StatusConflict, "NOT_EMPTY", err.Error())
			return
		}
		writeErrForLookup(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toFileInfoJSON(info *metadata.FileInfo) *FileInfoJSON {
	return &FileInfoJSON{
		Path: info.Path, Size: info.Size,
		ModifiedAt: info.ModifiedAt.Unix(), MerkleRoot: info.MerkleRoot,
		Domain: info.Domain, Mode: uint32(info.Mode),
	}
}

func writeErrForLookup(w http.ResponseWriter, err error) {
	if errors.Is(err, metadata.ErrFileNotFound) {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if errors.Is(err, node.ErrNotMounted) {
		writeJSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, JSONError{Code: code, Message: msg})
}

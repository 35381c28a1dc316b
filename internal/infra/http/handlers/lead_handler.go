package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/leadsync/internal/usecase"
)

type MessageSender interface {
	Execute(ctx context.Context, input usecase.SendMessageInput) (*usecase.SendMessageOutput, error)
}

type LeadDeleter interface {
	Execute(ctx context.Context, phone string) (*usecase.DeleteLeadOutput, error)
}

type LeadHandler struct {
	Send        MessageSender
	Delete      LeadDeleter
	rateLimiter *RateLimiter
}

func NewLeadHandler(send MessageSender, del LeadDeleter) *LeadHandler {
	return &LeadHandler{
		Send:        send,
		Delete:      del,
		rateLimiter: NewRateLimiter(10, time.Minute), // 10 sends/min per client
	}
}

type SendMessageRequest struct {
	Step int    `json:"step"`
	Body string `json:"body"`
}

func (h *LeadHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if !h.rateLimiter.Allow(getClientIP(r)) {
		writeMessage(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, usecase.CodeInvalidInput, "invalid JSON")
		return
	}

	output, err := h.Send.Execute(r.Context(), usecase.SendMessageInput{
		Phone: phoneParam(r),
		Step:  req.Step,
		Body:  req.Body,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

func (h *LeadHandler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	output, err := h.Delete.Execute(r.Context(), phoneParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

// phoneParam decodes {phone}; "+44..." arrives as "%2B44...".
func phoneParam(r *http.Request) string {
	raw := chi.URLParam(r, "phone")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimiter is a fixed-window counter per client.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	count     int
	lastReset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evict(now)

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{count: 1, lastReset: now}
		return true
	}
	if now.Sub(v.lastReset) > rl.window {
		v.count = 1
		v.lastReset = now
		return true
	}
	v.count++
	return v.count <= rl.limit
}

// evict drops idle visitors; callers hold mu.
func (rl *RateLimiter) evict(now time.Time) {
	for ip, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

package storage

// Package storage provides a minimal persistence layer for the posting
// daemon.
//
// It currently supports:
//   - Audit log appends (queue and publish actions)
//   - Notification dedup state (to survive restarts)

// Package backend selects the task collection a client talks to: the remote service or the
// in-process SQLite store.
package backend

import (
	"context"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/collection"
	"taskboard/internal/local"
	"taskboard/internal/model"
	"taskboard/internal/session"
	"taskboard/internal/store"
)

// Backend authenticates users and hands out a task service bound to a session.
type Backend interface {
	session.Authenticator
	Tasks(sess model.Session) board.Service
	Close() error
}

type Options struct {
	Kind        string // store.BackendRemote or store.BackendLocal
	APIURL      string
	HTTPTimeout time.Duration
	DBPath      string
	Store       store.Store
}

func Open(ctx context.Context, opts Options) (Backend, error) {
	kind, err := store.NormalizeBackend(opts.Kind)
	if err != nil {
		return nil, err
	}
	if kind == store.BackendLocal {
		lb, err := local.Open(ctx, opts.Store, opts.DBPath)
		if err != nil {
			return nil, err
		}
		return Local{lb}, nil
	}
	url := opts.APIURL
	if url == "" {
		url = store.DefaultAPIURL
	}
	return Remote{collection.New(url, opts.HTTPTimeout)}, nil
}

type Remote struct {
	*collection.Client
}

func (r Remote) Tasks(sess model.Session) board.Service { return r.WithToken(sess.Token) }
func (r Remote) Close() error                           { return nil }

type Local struct {
	*local.Backend
}

func (l Local) Tasks(sess model.Session) board.Service { return l.ForToken(sess.Token) }

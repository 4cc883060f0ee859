package pool

import (
	"context"
	"sync"
)

// ServeWorker runs the worker side of the wire protocol on tr until
// the transport closes: ping is answered with ready, download starts a
// Fetcher call whose progress and terminal outcome are reported back,
// abort cancels the matching in-flight fetch.
//
// The pool's default WorkerFactory runs this in-process; callers with
// their own execution runtime can run it wherever the bytes are
// actually produced.
func ServeWorker(tr Transport, f Fetcher) {
	var (
		mu      sync.Mutex
		cancels = map[string]context.CancelFunc{}
	)
	defer func() {
		mu.Lock()
		for _, cancel := range cancels {
			cancel()
		}
		mu.Unlock()
	}()

	for {
		env, err := tr.Recv()
		if err != nil {
			return // transport closed or poisoned; coordinator prunes us
		}

		switch env.Kind {
		case KindPing:
			if tr.Send(Envelope{Kind: KindReady}) != nil {
				return
			}

		case KindDownload:
			ctx, cancel := context.WithCancel(context.Background())
			mu.Lock()
			cancels[env.ID] = cancel
			mu.Unlock()

			id, urls := env.ID, env.URLs
			go func() {
				defer func() {
					mu.Lock()
					delete(cancels, id)
					mu.Unlock()
					cancel()
				}()

				res, err := f.Fetch(ctx, urls, func(v int) {
					_ = tr.Send(Envelope{Kind: KindProgress, ID: id, Value: v})
				})
				if err != nil {
					_ = tr.Send(Envelope{Kind: KindError, ID: id, Message: err.Error()})
					return
				}
				_ = tr.Send(Envelope{
					Kind:     KindResult,
					ID:       id,
					URL:      res.SourceEndpoint,
					MIMEType: res.MIMEType,
					Filename: res.Filename,
					Data:     res.Bytes,
				})
			}()

		case KindAbort:
			mu.Lock()
			if cancel, ok := cancels[env.ID]; ok {
				cancel()
			}
			mu.Unlock()
		}
	}
}

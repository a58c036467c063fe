package service

import "github.com/sso312/QueryLens-sub002/internal/model"

// TrailPublisher streams trail entries to live subscribers of a request
// (avoids an import cycle with the websocket hub).
type TrailPublisher interface {
	PublishTrail(requestID string, entry model.AttemptEntry)
	CloseRequest(requestID string)
}

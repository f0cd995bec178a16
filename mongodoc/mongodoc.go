// Package mongodoc provides the connection bootstrap shared by the queue and
// lock repositories. It is the only place in this module that talks directly
// to a *mongo.Client; everything else operates on a *mongo.Collection handle,
// per spec §9's "no global state" (each repository owns only its own
// collection handle).
package mongodoc

import (
	"context"
	"time"

	perrors "github.com/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect dials uri and verifies the connection with a ping, generalizing the
// teacher's db.ConnectMongoDB. connectTimeout bounds both steps.
func Connect(ctx context.Context, uri string, connectTimeout time.Duration) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, perrors.Wrap(err, "mongodoc: connect")
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, perrors.Wrap(err, "mongodoc: ping")
	}

	return client, nil
}

// Disconnect closes client, bounding the shutdown by timeout.
func Disconnect(ctx context.Context, client *mongo.Client, timeout time.Duration) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Disconnect(disconnectCtx)
}

// Collection returns the named collection from database on client.
func Collection(client *mongo.Client, database, collection string) *mongo.Collection {
	return client.Database(database).Collection(collection)
}

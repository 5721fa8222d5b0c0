package wire

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc/metadata"
)

// Connection metadata keys sent by cores on both streams.
const (
	MetadataUID     = "kritor-self-uid"
	MetadataUIN     = "kritor-self-uin"
	MetadataVersion = "kritor-self-version"
)

// ErrMissingUID is returned when a stream arrives without kritor-self-uid.
var ErrMissingUID = errors.New("wire: missing " + MetadataUID + " metadata")

// Identity is the account a core announces when it connects.
type Identity struct {
	UID     string
	UIN     uint64
	Version string
}

// IdentityFromContext reads the core identity from incoming gRPC metadata.
// A malformed uin is treated as 0.
func IdentityFromContext(ctx context.Context) (Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Identity{}, ErrMissingUID
	}
	id := Identity{
		UID:     first(md, MetadataUID),
		Version: first(md, MetadataVersion),
	}
	if id.UID == "" {
		return Identity{}, ErrMissingUID
	}
	if raw := first(md, MetadataUIN); raw != "" {
		if uin, err := strconv.ParseUint(raw, 10, 64); err == nil {
			id.UIN = uin
		}
	}
	return id, nil
}

// OutgoingContext attaches id to ctx for a client opening a stream.
func OutgoingContext(ctx context.Context, id Identity) context.Context {
	kv := []string{MetadataUID, id.UID, MetadataUIN, strconv.FormatUint(id.UIN, 10)}
	if id.Version != "" {
		kv = append(kv, MetadataVersion, id.Version)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

func first(md metadata.MD, key string) string {
	if vs := md.Get(key); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

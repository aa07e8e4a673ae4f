// Package snapshot archives every persisted mapping document to object
// storage so earlier versions can be inspected and restored by hand.
package snapshot

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/koustreak/schemabridge/internal/errs"
	"github.com/koustreak/schemabridge/internal/filestore"
	"github.com/koustreak/schemabridge/internal/logger"
)

// nameLayout sorts lexically in time order.
const nameLayout = "20060102T150405.000000000Z"

const maxDocumentBytes = 8 << 20

// Entry is one archived document.
type Entry struct {
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archive writes snapshots under connections/<id>/mappings/ in one bucket.
type Archive struct {
	store  filestore.Store
	bucket string
	log    *logger.Logger
	now    func() time.Time
}

func New(store filestore.Store, bucket string, log *logger.Logger) *Archive {
	if log == nil {
		log = logger.Global()
	}
	return &Archive{
		store:  store,
		bucket: bucket,
		log:    log.With().Str("component", "snapshot").Str("bucket", bucket).Logger(),
		now:    time.Now,
	}
}

// Init creates the bucket when needed.
func (a *Archive) Init(ctx context.Context) error {
	return a.store.EnsureBucket(ctx, a.bucket)
}

// Key is the object key of the snapshot of connID taken at t.
func Key(connID string, t time.Time) string {
	return prefix(connID) + t.UTC().Format(nameLayout) + ".json"
}

func prefix(connID string) string {
	return "connections/" + connID + "/mappings/"
}

// Archive stores doc as the newest snapshot of connID.
func (a *Archive) Archive(ctx context.Context, connID, doc string) error {
	if connID == "" || strings.Contains(connID, "/") {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid connection id %q", connID)
	}
	key := Key(connID, a.now())
	info, err := a.store.PutObject(ctx, a.bucket, key, strings.NewReader(doc), int64(len(doc)), "application/json")
	if err != nil {
		return err
	}
	a.log.Debugf("mapping snapshot stored at %s (%d bytes)", info.Key, info.Size)
	return nil
}

// List returns the snapshots of connID, newest first.
func (a *Archive) List(ctx context.Context, connID string) ([]Entry, error) {
	objects, err := a.store.ListObjects(ctx, a.bucket, filestore.ListOptions{Prefix: prefix(connID)})
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(objects))
	for _, o := range objects {
		name := path.Base(o.Key)
		created, err := time.Parse(nameLayout, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: name, Key: o.Key, Size: o.Size, CreatedAt: created})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Get returns the content of the snapshot called name.
func (a *Archive) Get(ctx context.Context, connID, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".json") {
		return "", errs.Newf(errs.ErrKindInvalidInput, "invalid snapshot name %q", name)
	}

	obj, err := a.store.GetObject(ctx, a.bucket, prefix(connID)+name)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(obj, maxDocumentBytes)); err != nil {
		return "", errs.Wrap(errs.ErrKindQueryFailed, "failed to read snapshot", err)
	}
	return buf.String(), nil
}

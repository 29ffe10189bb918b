package consul

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/mirrorfs/data"
	"github.com/mwantia/mirrorfs/sandbox"
)

// Consul KV limits values to 512KB; stay slightly below to leave headroom
// for transport overhead.
const maxValueSize = 500 * 1024

// ConsulSandbox is a sandbox filesystem stored in HashiCorp Consul KV.
//
// Architecture:
// - Files are stored directly in Consul KV with their path as the key
// - Directories are virtual: they exist only as key prefixes, so an empty
//   directory created here is tracked in a small in-process set
// - Prefix is configurable (default: "mirrorfs/")
//
// Best suited for configuration trees and small project files; anything
// near the KV value limit is rejected with ErrObjectTooLarge.
type ConsulSandbox struct {
	mu     sync.RWMutex
	client *api.Client
	kv     *api.KV
	feed   *sandbox.Feed

	// Empty directories have no KV representation
	emptyDirs map[string]bool

	config *ConsulSandboxConfig
}

// ConsulSandboxConfig contains configuration options for the Consul sandbox.
type ConsulSandboxConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Prefix for all keys in Consul KV (default: "mirrorfs/")
	Prefix string
}

// NewConsulSandbox creates a new Consul-backed sandbox filesystem.
func NewConsulSandbox(config *ConsulSandboxConfig) (*ConsulSandbox, error) {
	if config == nil {
		config = &ConsulSandboxConfig{}
	}

	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}
	if config.Prefix == "" {
		config.Prefix = "mirrorfs/"
	}
	if !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulSandbox{
		client:    client,
		kv:        client.KV(),
		feed:      sandbox.NewFeed(),
		emptyDirs: make(map[string]bool),
		config:    config,
	}, nil
}

// Name returns the identifier name defined for this backend.
func (*ConsulSandbox) Name() string {
	return "consul"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (cs *ConsulSandbox) Open(ctx context.Context) error {
	// Nothing to initialize, Consul handles connections
	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (cs *ConsulSandbox) Close(ctx context.Context) error {
	cs.feed.Close()
	return nil
}

func (cs *ConsulSandbox) buildKey(path string) string {
	return cs.config.Prefix + path
}

func (cs *ConsulSandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	pair, _, err := cs.kv.Get(cs.buildKey(path), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}

	if pair == nil {
		if cs.isVirtualDirUnsafe(ctx, path) {
			return nil, data.ErrIsDirectory
		}
		return nil, data.ErrNotExist
	}

	return pair.Value, nil
}

func (cs *ConsulSandbox) WriteFile(ctx context.Context, path string, content []byte) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	if len(content) > maxValueSize {
		return data.ErrObjectTooLarge
	}

	cs.mu.Lock()

	key := cs.buildKey(path)
	pair, _, err := cs.kv.Get(key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		cs.mu.Unlock()
		return err
	}
	exists := pair != nil

	// Parents must be classified before the new key makes them all
	// look pre-existing
	events, tracked := materializedParentEvents(path, cs.emptyDirs, func(parent string) bool {
		return cs.isVirtualDirUnsafe(ctx, parent)
	})

	_, err = cs.kv.Put(&api.KVPair{Key: key, Value: content},
		(&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		cs.mu.Unlock()
		return err
	}

	for _, parent := range tracked {
		delete(cs.emptyDirs, parent)
	}

	kind := data.EventAddFile
	if exists {
		kind = data.EventChangeFile
	}
	events = append(events, data.WatchEvent{
		Kind:    kind,
		Path:    sandbox.AbsolutePath(path),
		Payload: content,
	})
	cs.mu.Unlock()

	for _, ev := range events {
		cs.feed.Publish(ev)
	}

	return nil
}

func (cs *ConsulSandbox) MakeDirectory(ctx context.Context, path string) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	cs.mu.Lock()

	if cs.emptyDirs[path] || cs.isVirtualDirUnsafe(ctx, path) {
		cs.mu.Unlock()
		return data.ErrExist
	}

	pair, _, err := cs.kv.Get(cs.buildKey(path), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		cs.mu.Unlock()
		return err
	}
	if pair != nil {
		cs.mu.Unlock()
		return data.ErrNotDirectory
	}

	cs.emptyDirs[path] = true
	cs.mu.Unlock()

	cs.feed.Publish(data.WatchEvent{
		Kind: data.EventAddDir,
		Path: sandbox.AbsolutePath(path),
	})

	return nil
}

func (cs *ConsulSandbox) Remove(ctx context.Context, path string) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	cs.mu.Lock()

	key := cs.buildKey(path)
	pair, _, err := cs.kv.Get(key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		cs.mu.Unlock()
		return err
	}

	if pair != nil {
		if _, err := cs.kv.Delete(key, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
			cs.mu.Unlock()
			return err
		}
		cs.mu.Unlock()

		cs.feed.Publish(data.WatchEvent{
			Kind: data.EventRemoveFile,
			Path: sandbox.AbsolutePath(path),
		})
		return nil
	}

	if cs.emptyDirs[path] {
		delete(cs.emptyDirs, path)
		cs.mu.Unlock()

		cs.feed.Publish(data.WatchEvent{
			Kind: data.EventRemoveDir,
			Path: sandbox.AbsolutePath(path),
		})
		return nil
	}

	if !cs.isVirtualDirUnsafe(ctx, path) {
		cs.mu.Unlock()
		return data.ErrNotExist
	}

	// Virtual directory: delete the whole subtree
	if _, err := cs.kv.DeleteTree(key+"/", (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		cs.mu.Unlock()
		return err
	}
	for dir := range cs.emptyDirs {
		if data.HasPrefix(sandbox.AbsolutePath(dir), sandbox.AbsolutePath(path)) {
			delete(cs.emptyDirs, dir)
		}
	}
	cs.mu.Unlock()

	cs.feed.Publish(data.WatchEvent{
		Kind: data.EventRemoveDir,
		Path: sandbox.AbsolutePath(path),
	})

	return nil
}

// Watch streams change events, replaying current KV contents first.
func (cs *ConsulSandbox) Watch(ctx context.Context) (<-chan data.WatchEvent, error) {
	return sandbox.WatchFeed(ctx, cs.feed, cs.snapshot)
}

func (cs *ConsulSandbox) snapshot(ctx context.Context) ([]data.WatchEvent, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	pairs, _, err := cs.kv.List(cs.config.Prefix, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}

	// Directories are implied by key prefixes plus the tracked empty ones
	dirs := make(map[string]bool)
	for dir := range cs.emptyDirs {
		dirs[dir] = true
	}

	files := make(map[string][]byte, len(pairs))
	for _, pair := range pairs {
		path := strings.TrimPrefix(pair.Key, cs.config.Prefix)
		if path == "" {
			continue
		}

		files[path] = pair.Value
		for _, parent := range parentPaths(path) {
			dirs[parent] = true
		}
	}

	sortedDirs := make([]string, 0, len(dirs))
	for dir := range dirs {
		sortedDirs = append(sortedDirs, dir)
	}
	sort.Strings(sortedDirs)

	sortedFiles := make([]string, 0, len(files))
	for file := range files {
		sortedFiles = append(sortedFiles, file)
	}
	sort.Strings(sortedFiles)

	events := make([]data.WatchEvent, 0, len(dirs)+len(files))
	for _, dir := range sortedDirs {
		events = append(events, data.WatchEvent{
			Kind: data.EventAddDir,
			Path: sandbox.AbsolutePath(dir),
		})
	}
	for _, file := range sortedFiles {
		events = append(events, data.WatchEvent{
			Kind:    data.EventAddFile,
			Path:    sandbox.AbsolutePath(file),
			Payload: files[file],
		})
	}

	return events, nil
}

// isVirtualDirUnsafe reports whether any keys exist below path.
// Must be called with lock held.
func (cs *ConsulSandbox) isVirtualDirUnsafe(ctx context.Context, path string) bool {
	keys, _, err := cs.kv.Keys(cs.buildKey(path)+"/", "", (&api.QueryOptions{}).WithContext(ctx))
	return err == nil && len(keys) > 0
}

// materializedParentEvents lists the add-dir events for ancestors of path
// that come into existence only through this write: neither tracked as
// empty directories nor already implied by existing keys. Tracked empty
// ancestors were announced when created and are returned separately so the
// caller can drop them from the set without re-announcing.
func materializedParentEvents(path string, emptyDirs map[string]bool, isVirtual func(string) bool) ([]data.WatchEvent, []string) {
	var events []data.WatchEvent
	var tracked []string

	for _, parent := range parentPaths(path) {
		if emptyDirs[parent] {
			tracked = append(tracked, parent)
			continue
		}

		if !isVirtual(parent) {
			events = append(events, data.WatchEvent{
				Kind: data.EventAddDir,
				Path: sandbox.AbsolutePath(parent),
			})
		}
	}

	return events, tracked
}

// parentPaths lists every ancestor directory of path, shallowest first.
func parentPaths(path string) []string {
	var parents []string

	segments := strings.Split(path, "/")
	current := ""
	for _, segment := range segments[:len(segments)-1] {
		if current == "" {
			current = segment
		} else {
			current = current + "/" + segment
		}
		parents = append(parents, current)
	}

	return parents
}

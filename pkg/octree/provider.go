package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/pointgrid/pointgrid/pkg/point"
)

// AttributeExtension maps an attribute name onto its file extension.
func AttributeExtension(attribute string) string {
	switch attribute {
	case "position":
		return "xyz"
	case "color":
		return "rgb"
	default:
		return attribute
	}
}

// DataProvider is a content-addressed backend for node streams: given a node
// id and attribute names, it hands back one reader per attribute. Backends
// may target the local filesystem, an object store or the network.
type DataProvider interface {
	// Meta reads and parses the tree descriptor.
	Meta() (*Meta, error)

	// Data opens the named attribute streams of a node. A missing stream
	// makes the whole call fail with ErrNodeNotFound.
	Data(nodeID string, attributes []string) (map[string]io.ReadCloser, error)
}

// OnDiskDataProvider serves a tree directory on the local filesystem, with
// node streams laid out as "<dir>/<id>.<ext>".
type OnDiskDataProvider struct {
	Directory string
}

// Stem returns the path prefix shared by all streams of a node.
func (p *OnDiskDataProvider) Stem(nodeID string) string {
	return filepath.Join(p.Directory, nodeID)
}

// NumberOfPoints derives a node's point count from the size of its color
// stream. Color is required and always present, at 3 bytes per point.
func (p *OnDiskDataProvider) NumberOfPoints(nodeID string) (int64, error) {
	info, err := os.Stat(p.Stem(nodeID) + "." + AttributeExtension("color"))
	if err != nil {
		return 0, errors.Wrapf(point.ErrNodeNotFound, "node %s", nodeID)
	}
	return info.Size() / 3, nil
}

// Meta implements DataProvider.
func (p *OnDiskDataProvider) Meta() (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(p.Directory, MetaFilename))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", MetaFilename)
	}
	meta, err := UnmarshalMeta(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", MetaFilename)
	}
	return meta, nil
}

// Data implements DataProvider.
func (p *OnDiskDataProvider) Data(nodeID string, attributes []string) (map[string]io.ReadCloser, error) {
	readers := make(map[string]io.ReadCloser, len(attributes))
	for _, attribute := range attributes {
		f, err := os.Open(p.Stem(nodeID) + "." + AttributeExtension(attribute))
		if err != nil {
			for _, r := range readers {
				r.Close()
			}
			if os.IsNotExist(err) {
				return nil, errors.Wrapf(point.ErrNodeNotFound, "node %s attribute %s", nodeID, attribute)
			}
			return nil, errors.Wrapf(err, "opening node %s attribute %s", nodeID, attribute)
		}
		readers[attribute] = f
	}
	return readers, nil
}

// ProviderFactory builds a DataProvider from a location string. Backends
// register themselves under a URL-style prefix; plain paths fall through to
// the on-disk provider.
type ProviderFactory func(location string) (DataProvider, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]ProviderFactory)
)

// RegisterProvider installs a factory for locations starting with prefix.
func RegisterProvider(prefix string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[prefix] = factory
}

// NewDataProvider resolves a location string against the registered
// factories, longest prefix first.
func NewDataProvider(location string) (DataProvider, error) {
	providersMu.RLock()
	prefixes := make([]string, 0, len(providers))
	for prefix := range providers {
		prefixes = append(prefixes, prefix)
	}
	providersMu.RUnlock()
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, prefix := range prefixes {
		if strings.HasPrefix(location, prefix) {
			providersMu.RLock()
			factory := providers[prefix]
			providersMu.RUnlock()
			return factory(location)
		}
	}
	return &OnDiskDataProvider{Directory: location}, nil
}

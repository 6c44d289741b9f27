package razy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Domain resolves URL paths of one FQDN onto distributor folders. A
// Domain never owns Distributor instances across requests: every
// resolution constructs a fresh one.
type Domain struct {
	app    *Application
	name   string
	config *DomainConfig
	mounts []SiteMount
}

func newDomain(app *Application, name string, config *DomainConfig) *Domain {
	mounts := make([]SiteMount, len(config.Sites))
	copy(mounts, config.Sites)
	// Deepest mount path wins; ties keep config order.
	sort.SliceStable(mounts, func(i, j int) bool {
		return pathDepth(normalizePath(mounts[i].Path)) > pathDepth(normalizePath(mounts[j].Path))
	})
	return &Domain{app: app, name: name, config: config, mounts: mounts}
}

// Name returns the FQDN this domain serves.
func (dm *Domain) Name() string { return dm.name }

// ResolveMount returns the deepest mount whose path prefixes urlPath.
func (dm *Domain) ResolveMount(urlPath string) (SiteMount, bool) {
	p := normalizePath(urlPath)
	for _, mount := range dm.mounts {
		if strings.HasPrefix(p, normalizePath(mount.Path)) {
			return mount, true
		}
	}
	return SiteMount{}, false
}

// Distributor constructs a fresh distributor for the mount serving
// urlPath, returning it together with the path remainder to dispatch
// inside it.
func (dm *Domain) Distributor(urlPath string) (*Distributor, string, error) {
	mount, ok := dm.ResolveMount(urlPath)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s%s", ErrDistributorNotFound, dm.name, urlPath)
	}

	folder := mount.Folder
	if !filepath.IsAbs(folder) {
		folder = filepath.Join(dm.app.root, folder)
	}

	d, err := newDistributor(dm, folder, mount.Path, dm.app.distOptions()...)
	if err != nil {
		return nil, "", err
	}

	remainder := strings.TrimPrefix(normalizePath(urlPath), normalizePath(mount.Path))
	return d, "/" + remainder, nil
}

package collection

import (
	"fmt"
	"strings"

	"github.com/alcrishub/postman-runtime/internal/types"
)

// Flatten returns the request items of c in document order. Folder auth is
// pushed down to requests that declare none or inherit; collection auth is
// left to the materializer.
func Flatten(c *types.Collection) []types.CollectionItem {
	if c == nil {
		return nil
	}
	var out []types.CollectionItem
	flatten(c.Item, nil, "", &out)
	return out
}

// Select keeps the items of c whose name or enclosing folder path matches
// one of names. Matching is case-insensitive; folder paths use "/".
func Select(c *types.Collection, names []string) ([]types.CollectionItem, error) {
	if len(names) == 0 {
		return Flatten(c), nil
	}

	var all []pathItem
	if c != nil {
		walk(c.Item, nil, "", &all)
	}

	var out []types.CollectionItem
	for _, name := range names {
		matched := false
		for _, pi := range all {
			if pi.matches(name) {
				out = append(out, pi.item)
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("no item or folder named %q", name)
		}
	}
	return out, nil
}

type pathItem struct {
	item    types.CollectionItem
	folders string
}

func (p pathItem) matches(name string) bool {
	name = strings.Trim(name, "/")
	if strings.EqualFold(p.item.Name, name) {
		return true
	}
	if p.folders == "" {
		return false
	}
	full := strings.ToLower(p.folders)
	name = strings.ToLower(name)
	return full == name || strings.HasPrefix(full, name+"/") ||
		strings.EqualFold(p.folders+"/"+p.item.Name, name)
}

func flatten(items types.ItemList, auth *types.Auth, folders string, out *[]types.CollectionItem) {
	var tagged []pathItem
	walk(items, auth, folders, &tagged)
	for _, pi := range tagged {
		*out = append(*out, pi.item)
	}
}

func walk(items types.ItemList, auth *types.Auth, folders string, out *[]pathItem) {
	for _, item := range items {
		if item.IsFolder() || item.Request == nil {
			inherited := auth
			if item.Auth != nil && item.Auth.Type != types.AuthInherit {
				inherited = item.Auth
			}
			path := item.Name
			if folders != "" {
				path = folders + "/" + item.Name
			}
			walk(item.Item, inherited, path, out)
			continue
		}
		*out = append(*out, pathItem{item: withAuth(item, auth), folders: folders})
	}
}

// withAuth returns item with the effective auth placed on a copy of its request
func withAuth(item types.CollectionItem, folderAuth *types.Auth) types.CollectionItem {
	req := *item.Request
	if req.Auth == nil || req.Auth.Type == types.AuthInherit {
		switch {
		case item.Auth != nil && item.Auth.Type != types.AuthInherit:
			req.Auth = item.Auth
		case folderAuth != nil:
			req.Auth = folderAuth
		}
	}
	item.Request = &req
	return item
}

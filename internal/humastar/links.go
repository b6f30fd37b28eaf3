package humastar

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Links maps operation paths to the RFC 8288 Link header values emitted on
// their responses.
type Links map[string][]string

// AutoLinks walks the OpenAPI document and derives hypermedia links between
// collections, items and the /health entry point. Operations tagged with any
// of skipTags (SSE endpoints) are left out. Call after all routes are
// registered.
func AutoLinks(api huma.API, skipTags ...string) Links {
	oapi := api.OpenAPI()
	links := Links{}

	var collections, items []string
	tagsOf := map[string][]string{}
	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if slices.ContainsFunc(tags, func(t string) bool { return slices.Contains(skipTags, t) }) {
			continue
		}
		tagsOf[p] = tags
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	slices.Sort(collections)
	slices.Sort(items)

	// item → its collection
	for _, item := range items {
		parent := path.Dir(item)
		if _, ok := oapi.Paths[parent]; ok {
			links.add(item, parent, "collection")
			links.add(item, parent, "up")
		}
	}

	// collection → item template, entry point, create
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item) == coll {
				links.add(coll, item, "item")
			}
		}
		if coll != "/health" {
			links.add(coll, "/health", "up")
		}
		if oapi.Paths[coll].Post != nil {
			links.add(coll, coll, "create-form")
		}
	}
	for _, item := range items {
		if pi := oapi.Paths[item]; pi.Put != nil || pi.Patch != nil {
			links.add(item, item, "edit")
		}
	}

	// collections sharing a tag
	for _, a := range collections {
		for _, b := range collections {
			if a != b && sharedTag(tagsOf[a], tagsOf[b]) {
				links.add(a, b, lastSegment(b))
			}
		}
	}

	// entry point
	for _, coll := range collections {
		if coll != "/health" {
			links.add("/health", coll, lastSegment(coll))
		}
	}
	links.add("/health", "/openapi.json", "service-desc")
	links.add("/health", "/docs", "service-doc")

	for _, p := range append(collections, items...) {
		if ref := responseSchemaRef(oapi.Paths[p]); ref != "" {
			links.add(p, "/openapi.json#/components/schemas/"+ref, "describedby")
		}
	}

	for p, headers := range links {
		pi, ok := oapi.Paths[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}
	return links
}

// Transformer returns a Huma Transformer that appends the derived Link
// headers, a self link on item endpoints, pagination links from [Pager]
// bodies and action links from [Actor] bodies.
func (l Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l[op.Path] {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

// Root returns the entry point links for non-Huma handlers.
func (l Links) Root() []string {
	return l["/health"]
}

func (l Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	if !slices.Contains(l[from], val) {
		l[from] = append(l[from], val)
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func sharedTag(a, b []string) bool {
	return slices.ContainsFunc(a, func(t string) bool { return slices.Contains(b, t) })
}

func lastSegment(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}

// injectResponseLinks documents the links on the operation's success
// response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  "Related: " + rel,
		}
	}
}

func responseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return path.Base(mt.Schema.Ref)
			}
		}
	}
	return ""
}

func parseLinkHeader(h string) (rel, href string) {
	target, params, ok := strings.Cut(h, ";")
	if !ok {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(target), "<>")
	params = strings.TrimSpace(params)
	if strings.HasPrefix(params, `rel="`) {
		rel = strings.Trim(params[4:], `"`)
	}
	return rel, href
}

package image

import (
	"strings"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/tags"
)

// Normalize flattens list and map attributes into the strings that Packer
// and the setup scripts consume.
func (c *Config) Normalize() {
	c.joinList("name", "-")
	c.joinList("description", " ")
	c.joinList("repo_keys", " ")
	c.resolveMOTD()
	c.resolveURLs()
	c.stringifyRepos()
	c.stringifyPackages()
	c.stringifyServices()
	c.stringifyEnabledKeys("kernel_modules", ",")
	c.stringifyEnabledKeys("kernel_options", " ")
	c.stringifyEnabledKeys("initfs_features", " ")
}

func (c *Config) joinList(key, sep string) {
	switch v := c.attrs.Value(key).(type) {
	case []any:
		c.Set(key, strings.Join(stringList(v), sep))
	case nil:
		if c.attrs.Has(key) {
			c.Set(key, "")
		}
	}
}

// resolveMOTD joins the motd sections with blank lines. The release_notes
// section is dropped when there are no release notes to point at.
func (c *Config) resolveMOTD() {
	motd := c.attrs.Tree("motd")
	if motd == nil {
		return
	}
	if !motd.Has("release_notes") || !c.Truthy("release_notes") {
		motd.Delete("release_notes")
	}

	var sections []string
	motd.Each(func(_ string, v any) {
		switch val := v.(type) {
		case nil:
			return
		case []any:
			sections = append(sections, strings.Join(stringList(val), "\n"))
		default:
			sections = append(sections, tags.Stringify(val))
		}
	})

	c.Set("motd", config.Format(strings.Join(sections, "\n\n"), c.Vars()))
}

func (c *Config) resolveURLs() {
	for _, key := range []string{"storage_url", "download_url"} {
		if c.attrs.Has(key) {
			c.Set(key, config.Format(c.String(key), c.Vars()))
		}
	}
}

// stringifyRepos renders the repositories file:
//
//	<repo>: <tag>   @<tag> <repo>
//	<repo>: true    <repo>
//	<repo>: false   #<repo>
//	<repo>: null    (omitted)
func (c *Config) stringifyRepos() {
	repos := c.attrs.Tree("repos")
	if repos == nil {
		return
	}

	var lines []string
	repos.Each(func(repo string, v any) {
		switch val := v.(type) {
		case string:
			lines = append(lines, "@"+val+" "+repo)
		case bool:
			if val {
				lines = append(lines, repo)
			} else {
				lines = append(lines, "#"+repo)
			}
		}
	})

	c.Set("repos", config.Format(strings.Join(lines, "\n"), map[string]string{"version": c.Version()}))
}

// stringifyPackages splits packages into add, del and noscripts lists:
//
//	<pkg>: true                 add <pkg>
//	<pkg>: <tag>                add <pkg>@<tag>
//	<pkg>: --no-scripts         add --no-scripts <pkg>
//	<pkg>: --no-scripts <tag>   add --no-scripts <pkg>@<tag>
//	<pkg>: false                del <pkg>
//	<pkg>: null                 (omitted)
func (c *Config) stringifyPackages() {
	packages := c.attrs.Tree("packages")
	if packages == nil {
		return
	}

	buckets := map[string][]string{}
	packages.Each(func(pkg string, v any) {
		bucket := "add"
		switch val := v.(type) {
		case nil:
			return
		case bool:
			if !val {
				bucket = "del"
			}
		case string:
			if strings.Contains(val, "--no-scripts") {
				bucket = "noscripts"
				val = strings.ReplaceAll(val, "--no-scripts", "")
			}
			if val = strings.TrimSpace(val); val != "" {
				pkg += "@" + val
			}
		}
		buckets[bucket] = append(buckets[bucket], pkg)
	})

	c.Set("packages", config.TreeOf(
		"add", strings.Join(buckets["add"], " "),
		"del", strings.Join(buckets["del"], " "),
		"noscripts", strings.Join(buckets["noscripts"], " "),
	))
}

// stringifyServices renders runlevel groups as "level=svc,svc" for services
// to enable (true) and disable (false). Empty groups are dropped.
func (c *Config) stringifyServices() {
	services := c.attrs.Tree("services")
	if services == nil {
		return
	}

	group := func(want bool) string {
		var groups []string
		services.Each(func(level string, v any) {
			svcs, ok := v.(*config.Tree)
			if !ok {
				return
			}
			var names []string
			svcs.Each(func(svc string, enabled any) {
				if b, ok := enabled.(bool); ok && b == want {
					names = append(names, svc)
				}
			})
			if len(names) > 0 {
				groups = append(groups, level+"="+strings.Join(names, ","))
			}
		})
		return strings.Join(groups, " ")
	}

	c.Set("services", config.TreeOf("enable", group(true), "disable", group(false)))
}

// stringifyEnabledKeys joins the keys of a map whose value is true.
func (c *Config) stringifyEnabledKeys(key, sep string) {
	m := c.attrs.Tree(key)
	if m == nil {
		return
	}

	var enabled []string
	m.Each(func(k string, v any) {
		if b, ok := v.(bool); ok && b {
			enabled = append(enabled, k)
		}
	})
	c.Set(key, strings.Join(enabled, sep))
}

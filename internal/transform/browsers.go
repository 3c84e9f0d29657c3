package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// browserRelease lists the released versions of one browser, oldest first.
// The lists are a snapshot; "last N versions" counts back from the end.
type browserRelease struct {
	engine   api.EngineName
	versions []string
}

var browserReleases = map[string]browserRelease{
	"chrome":  {api.EngineChrome, []string{"120", "121", "122", "123", "124", "125", "126", "127", "128", "129", "130", "131"}},
	"edge":    {api.EngineEdge, []string{"120", "121", "122", "123", "124", "125", "126", "127", "128", "129", "130", "131"}},
	"firefox": {api.EngineFirefox, []string{"121", "122", "123", "124", "125", "126", "127", "128", "129", "130", "131", "132"}},
	"safari":  {api.EngineSafari, []string{"15.6", "16.6", "17.0", "17.4", "17.5", "17.6", "18.0", "18.1"}},
	"ios_saf": {api.EngineIOS, []string{"15.6", "16.6", "17.0", "17.4", "17.5", "17.6", "18.0", "18.1"}},
	"opera":   {api.EngineOpera, []string{"106", "107", "108", "109", "110", "111", "112", "113", "114"}},
	"ie":      {api.EngineIE, []string{"9", "10", "11"}},
}

var browserAliases = map[string]string{
	"explorer": "ie",
	"ios":      "ios_saf",
	"ff":       "firefox",
}

// Engines converts a subset of the browserslist query language into esbuild
// engine targets. Supported queries are "defaults", "last N versions",
// "last N <browser> versions", "<browser> <version>" and
// "<browser> >= <version>". Queries that only narrow a selection
// ("> 1%", "not dead") are accepted and ignored. For every engine the
// oldest selected version wins.
func Engines(queries []string) ([]api.Engine, error) {
	min := make(map[api.EngineName]string)
	pick := func(engine api.EngineName, version string) {
		if cur, ok := min[engine]; !ok || compareVersions(version, cur) < 0 {
			min[engine] = version
		}
	}

	for _, raw := range queries {
		for _, q := range strings.Split(raw, ",") {
			if err := applyQuery(strings.ToLower(strings.TrimSpace(q)), pick); err != nil {
				return nil, err
			}
		}
	}

	engines := make([]api.Engine, 0, len(min))
	for name, version := range min {
		engines = append(engines, api.Engine{Name: name, Version: version})
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i].Name < engines[j].Name })
	return engines, nil
}

func applyQuery(q string, pick func(api.EngineName, string)) error {
	fields := strings.Fields(q)
	switch {
	case q == "":
		return nil
	case q == "defaults":
		return applyQuery("last 2 versions", pick)
	case strings.HasPrefix(q, ">"), strings.HasPrefix(q, "not "), q == "dead", q == "maintained node versions":
		return nil
	case fields[0] == "last" && len(fields) == 3 && fields[2] == "versions":
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid browser query %q", q)
		}
		for _, rel := range browserReleases {
			pick(rel.engine, lastN(rel.versions, n))
		}
		return nil
	case fields[0] == "last" && len(fields) == 4 && fields[3] == "versions":
		n, err := strconv.Atoi(fields[1])
		rel, ok := lookupBrowser(fields[2])
		if err != nil || n < 1 || !ok {
			return fmt.Errorf("invalid browser query %q", q)
		}
		pick(rel.engine, lastN(rel.versions, n))
		return nil
	case len(fields) == 2:
		rel, ok := lookupBrowser(fields[0])
		if !ok {
			return fmt.Errorf("unknown browser in query %q", q)
		}
		pick(rel.engine, fields[1])
		return nil
	case len(fields) == 3 && fields[1] == ">=":
		rel, ok := lookupBrowser(fields[0])
		if !ok {
			return fmt.Errorf("unknown browser in query %q", q)
		}
		pick(rel.engine, fields[2])
		return nil
	default:
		return fmt.Errorf("unsupported browser query %q", q)
	}
}

func lookupBrowser(name string) (browserRelease, bool) {
	if alias, ok := browserAliases[name]; ok {
		name = alias
	}
	rel, ok := browserReleases[name]
	return rel, ok
}

func lastN(versions []string, n int) string {
	if n > len(versions) {
		n = len(versions)
	}
	return versions[len(versions)-n]
}

func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y int
		if i < len(as) {
			x, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			y, _ = strconv.Atoi(bs[i])
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Package share builds the copyable snippets that point at a published
// package: an iframe for the embed page, a source import and the CLI command
// that pulls the package.
package share

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/sakif/circuitpad/internal/apperror"
)

// ImportScope is the module scope packages are imported from.
const ImportScope = "@tsci"

// Snippets is every snippet for one package.
type Snippets struct {
	Iframe  string `json:"iframe"`
	Import  string `json:"import"`
	Install string `json:"install"`
}

// For builds all snippets for name ("owner/name"). version may be empty.
func For(embedBaseURL, name, version string) (*Snippets, error) {
	iframe, err := IframeSnippet(embedBaseURL, name, version)
	if err != nil {
		return nil, err
	}
	imp, err := ImportSnippet(name)
	if err != nil {
		return nil, err
	}
	install, err := InstallCommand(name, version)
	if err != nil {
		return nil, err
	}
	return &Snippets{Iframe: iframe, Import: imp, Install: install}, nil
}

// IframeSnippet embeds the package's preview page.
func IframeSnippet(embedBaseURL, name, version string) (string, error) {
	owner, unscoped, err := split(name)
	if err != nil {
		return "", err
	}
	base, err := url.Parse(strings.TrimRight(embedBaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", apperror.ValidationFailed("embed_base_url", fmt.Sprintf("invalid URL %q", embedBaseURL))
	}

	q := url.Values{}
	q.Set("name", owner+"/"+unscoped)
	if version != "" {
		q.Set("version", version)
	}
	base.Path += "/embed"
	base.RawQuery = q.Encode()

	return fmt.Sprintf(`<iframe src="%s" width="100%%" height="500" style="border: 0" title="%s/%s"></iframe>`,
		base.String(), owner, unscoped), nil
}

// ImportSnippet imports the package's default export under a PascalCase
// name derived from the unscoped name.
func ImportSnippet(name string) (string, error) {
	owner, unscoped, err := split(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`import %s from "%s"`, componentName(unscoped), ModulePath(owner, unscoped)), nil
}

// InstallCommand pulls the package into a local workspace.
func InstallCommand(name, version string) (string, error) {
	owner, unscoped, err := split(name)
	if err != nil {
		return "", err
	}
	cmd := "circuitpad pull " + owner + "/" + unscoped
	if version != "" {
		cmd += " --version " + version
	}
	return cmd, nil
}

// ModulePath is the import path of a package, e.g. "@tsci/alice.usb-c".
func ModulePath(owner, unscoped string) string {
	return ImportScope + "/" + owner + "." + unscoped
}

func split(name string) (owner, unscoped string, err error) {
	owner, unscoped, ok := strings.Cut(strings.TrimSpace(name), "/")
	if !ok || owner == "" || unscoped == "" || strings.Contains(unscoped, "/") ||
		strings.ContainsAny(name, " \t\"<>") {
		return "", "", apperror.ValidationFailed("name", fmt.Sprintf("expected owner/name, got %q", name))
	}
	return owner, unscoped, nil
}

// componentName turns "usb-c_connector" into "UsbCConnector". Names that
// would start with a digit get a leading underscore.
func componentName(unscoped string) string {
	var b strings.Builder
	upper := true
	for _, r := range unscoped {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return "Component"
	}
	if unicode.IsDigit(rune(out[0])) {
		return "_" + out
	}
	return out
}

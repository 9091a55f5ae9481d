package workspace

import (
	"sort"

	"github.com/sakif/circuitpad/internal/model"
)

type template struct {
	Type  model.PackageType
	Files []File
}

// templates seed new, unsaved workspaces.
var templates = map[string]template{
	"blank-circuit-board": {
		Type: model.PackageTypeBoard,
		Files: []File{{Path: "index.tsx", Content: `export default () => (
  <board width="10mm" height="10mm">
    <resistor name="R1" resistance="1k" footprint="0402" />
  </board>
)
`}},
	},
	"blank-circuit-module": {
		Type: model.PackageTypePackage,
		Files: []File{{Path: "index.tsx", Content: `export const MyModule = () => (
  <group>
    <resistor name="R1" resistance="1k" footprint="0402" />
  </group>
)
`}},
	},
	"blank-footprint": {
		Type: model.PackageTypeFootprint,
		Files: []File{{Path: "index.tsx", Content: `export const MyFootprint = () => (
  <footprint>
    <smtpad shape="rect" width="1mm" height="1mm" portHints={["1"]} />
  </footprint>
)
`}},
	},
}

// Templates lists the template names Load accepts.
func Templates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package enginetest

import (
	"fmt"
	"os"
	"path/filepath"
)

// passthroughScript emulates the batch executor: it pairs each staged input
// artifact with the matching output location and copies it across.
const passthroughScript = `#!/bin/sh
ins=""
outs=""
for arg in "$@"; do
  case "$arg" in
    -option=*,inputPathOrUrl,*) ins="$ins $(printf '%s' "$arg" | cut -d, -f3)" ;;
    -option=*,outputPathOrUrl,*) outs="$outs $(printf '%s' "$arg" | cut -d, -f3)" ;;
  esac
done
set -- $outs
for in_path in $ins; do
  [ $# -gt 0 ] || break
  cp "$in_path" "$1"
  shift
done
exit 0
`

// WritePassthroughStub writes an executable shell stub that mirrors every
// input table to the corresponding output artifact.
func WritePassthroughStub(path string) error {
	return os.WriteFile(path, []byte(passthroughScript), 0o755)
}

// WriteRecordingStub writes a passthrough stub that first appends its
// arguments, one per line, to recordPath.
func WriteRecordingStub(path, recordPath string) error {
	script := fmt.Sprintf(`#!/bin/sh
for arg in "$@"; do
  printf '%%s\n' "$arg" >> "%s"
done
`, recordPath) + passthroughScript[len("#!/bin/sh\n"):]
	return os.WriteFile(path, []byte(script), 0o755)
}

// WriteFailingStub writes a stub that prints message to stderr and exits
// with the given code, producing no output artifacts.
func WriteFailingStub(path string, exitCode int, message string) error {
	script := fmt.Sprintf("#!/bin/sh\necho %q >&2\nexit %d\n", message, exitCode)
	return os.WriteFile(path, []byte(script), 0o755)
}

// WriteWorkflowBundle lays out a minimal workflow bundle on disk with the
// given number of container input and output nodes. Input nodes get IDs
// 1..inputs, output nodes follow. It returns nothing an engine would miss:
// per-node settings.xml files plus the workflow.knime node index.
func WriteWorkflowBundle(dir string, inputs, outputs int) error {
	nodes := ""
	write := func(n int, factory string) error {
		name := fmt.Sprintf("Container Input _Table_ (#%d)", n)
		if factory == containerOutputFactoryName {
			name = fmt.Sprintf("Container Output _Table_ (#%d)", n)
		}
		nodeDir := filepath.Join(dir, name)
		if err := os.MkdirAll(nodeDir, 0o755); err != nil {
			return err
		}
		settings := fmt.Sprintf("<config key=\"settings.xml\">\n"+
			"  <entry key=\"factory\" value=\"org.knime.json.node.container.input.table.%s\"/>\n"+
			"</config>\n", factory)
		if err := os.WriteFile(filepath.Join(nodeDir, "settings.xml"), []byte(settings), 0o644); err != nil {
			return err
		}
		nodes += fmt.Sprintf("    <config key=\"node_%d\">\n"+
			"      <entry key=\"id\" value=\"%d\"/>\n"+
			"      <entry key=\"node_settings_file\" value=\"%s/settings.xml\"/>\n"+
			"    </config>\n", n, n, name)
		return nil
	}
	id := 1
	for i := 0; i < inputs; i++ {
		if err := write(id, containerInputFactoryName); err != nil {
			return err
		}
		id++
	}
	for i := 0; i < outputs; i++ {
		if err := write(id, containerOutputFactoryName); err != nil {
			return err
		}
		id++
	}
	doc := "<config key=\"workflow.knime\">\n" +
		"  <config key=\"nodes\">\n" + nodes + "  </config>\n" +
		"</config>\n"
	return os.WriteFile(filepath.Join(dir, "workflow.knime"), []byte(doc), 0o644)
}

const (
	containerInputFactoryName  = "ContainerTableInputNodeFactory"
	containerOutputFactoryName = "ContainerTableOutputNodeFactory"
)

package workflow

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"yqhp/knime-bridge/pkg/types"
)

// Factory class names that mark container table nodes inside a node's
// settings.xml.
const (
	containerInputFactory  = "ContainerTableInputNodeFactory"
	containerOutputFactory = "ContainerTableOutputNodeFactory"
)

// NodeLayout describes the container input/output nodes of a local workflow
// bundle. Slot positions map 1:1 onto these lists.
type NodeLayout struct {
	InputDirs  []string
	OutputDirs []string
	InputIDs   []int
	OutputIDs  []int
}

// Discover scans a workflow bundle on disk for container table nodes and
// resolves their node IDs from workflow.knime.
func Discover(bundlePath string) (*NodeLayout, error) {
	info, err := os.Stat(bundlePath)
	if err != nil || !info.IsDir() {
		return nil, types.NewError(types.CodeWorkflowNotFound,
			fmt.Sprintf("local workflow bundle not found: %s", bundlePath), err)
	}

	settings, err := filepath.Glob(filepath.Join(bundlePath, "*", "settings.xml"))
	if err != nil {
		return nil, types.NewError(types.CodeWorkflowNotFound, "scanning workflow bundle", err)
	}

	layout := &NodeLayout{}
	for _, settingsPath := range settings {
		buf, err := os.ReadFile(settingsPath)
		if err != nil {
			return nil, types.NewError(types.CodeWorkflowNotFound,
				fmt.Sprintf("reading %s", settingsPath), err)
		}
		dirname := filepath.Base(filepath.Dir(settingsPath))
		switch {
		case strings.Contains(string(buf), containerInputFactory):
			layout.InputDirs = append(layout.InputDirs, dirname)
		case strings.Contains(string(buf), containerOutputFactory):
			layout.OutputDirs = append(layout.OutputDirs, dirname)
		}
	}

	doc, err := parseWorkflowDoc(filepath.Join(bundlePath, "workflow.knime"))
	if err != nil {
		return nil, err
	}
	layout.InputIDs = make([]int, len(layout.InputDirs))
	for i, dir := range layout.InputDirs {
		if layout.InputIDs[i], err = doc.nodeID(dir); err != nil {
			return nil, err
		}
	}
	layout.OutputIDs = make([]int, len(layout.OutputDirs))
	for i, dir := range layout.OutputDirs {
		if layout.OutputIDs[i], err = doc.nodeID(dir); err != nil {
			return nil, err
		}
	}
	return layout, nil
}

// xmlConfig mirrors the nested <config>/<entry> structure of workflow.knime
// without pinning a particular XML namespace version.
type xmlConfig struct {
	Key     string      `xml:"key,attr"`
	Entries []xmlEntry  `xml:"entry"`
	Configs []xmlConfig `xml:"config"`
}

type xmlEntry struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

type workflowDoc struct {
	root xmlConfig
	path string
}

func parseWorkflowDoc(path string) (*workflowDoc, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.CodeWorkflowNotFound,
			fmt.Sprintf("reading workflow definition %s", path), err)
	}
	var root xmlConfig
	if err := xml.Unmarshal(buf, &root); err != nil {
		return nil, types.NewError(types.CodeWorkflowNotFound,
			fmt.Sprintf("parsing workflow definition %s", path), err)
	}
	return &workflowDoc{root: root, path: path}, nil
}

// nodeID resolves the node ID of the node stored in the given directory.
func (d *workflowDoc) nodeID(dirname string) (int, error) {
	target := dirname + "/settings.xml"
	for _, section := range d.root.Configs {
		if section.Key != "nodes" {
			continue
		}
		for _, node := range section.Configs {
			var id string
			var match bool
			for _, entry := range node.Entries {
				if entry.Key == "id" {
					id = entry.Value
				}
				if entry.Value == target {
					match = true
				}
			}
			if match && id != "" {
				n, err := strconv.Atoi(id)
				if err != nil {
					return 0, types.NewError(types.CodeWorkflowNotFound,
						fmt.Sprintf("malformed node id %q in %s", id, d.path), err)
				}
				return n, nil
			}
		}
	}
	return 0, types.NewError(types.CodeWorkflowNotFound,
		fmt.Sprintf("node %q not listed in %s", dirname, d.path), nil)
}

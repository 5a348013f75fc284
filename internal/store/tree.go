package store

import (
	"sort"

	"github.com/anirudh-why/codeHub/internal/models"
)

// BuildTree nests files and folders under their parent folders and returns
// the root-level nodes. Siblings are ordered folders first, then files, both
// alphabetically. Files whose parent folder is missing are dropped rather
// than surfaced at the root.
func BuildTree(files []*models.File, folders []*models.Folder) []*models.TreeNode {
	byID := make(map[string]*models.TreeNode, len(folders))
	for _, f := range folders {
		byID[f.ID.Hex()] = &models.TreeNode{ID: f.ID, Name: f.Name, Type: "folder"}
	}

	var roots []*models.TreeNode
	for _, f := range folders {
		node := byID[f.ID.Hex()]
		if f.Parent != nil {
			if parent, ok := byID[f.Parent.Hex()]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	for _, f := range files {
		node := &models.TreeNode{ID: f.ID, Name: f.Name, Type: "file", Language: f.Language}
		if f.Parent != nil {
			if parent, ok := byID[f.Parent.Hex()]; ok {
				parent.Children = append(parent.Children, node)
			}
			continue
		}
		roots = append(roots, node)
	}

	sortNodes(roots)
	for _, folder := range byID {
		sortNodes(folder.Children)
	}
	return roots
}

func sortNodes(nodes []*models.TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type == "folder"
		}
		return nodes[i].Name < nodes[j].Name
	})
}

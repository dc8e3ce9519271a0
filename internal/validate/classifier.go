package validate

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/language"

	"github.com/pkgaudit/symaudit/internal/nupkg"
)

// binaryFolders are the package subtrees that can contain shippable
// binaries.
var binaryFolders = []string{"lib", "runtimes"}

// Candidate pairs a binary with its co-located symbol file, when one exists.
type Candidate struct {
	File *nupkg.File
	// Pdb is the .pdb sibling of File, nil when the package ships none.
	Pdb *nupkg.File
}

// Classifier partitions a package's files into validation candidates.
type Classifier struct {
	binaryPatterns []glob.Glob
	satellite      glob.Glob
}

// NewClassifier creates a classifier for the tracked binary extensions.
func NewClassifier() *Classifier {
	return &Classifier{
		binaryPatterns: []glob.Glob{
			glob.MustCompile("**.dll", '/'),
			glob.MustCompile("**.exe", '/'),
			glob.MustCompile("**.winmd", '/'),
		},
		satellite: glob.MustCompile("**.resources.dll", '/'),
	}
}

// Classify returns the package's candidate binaries, paired with their
// co-located PDBs, with satellite assemblies excluded. An empty package
// yields an empty candidate set, not an error.
func (c *Classifier) Classify(pkg *nupkg.Package) []Candidate {
	var candidates []Candidate

	for _, folderName := range binaryFolders {
		folder := pkg.Folder(folderName)
		if folder == nil {
			continue
		}

		for _, file := range folder.Files() {
			lower := strings.ToLower(file.Path())
			if !c.isBinary(lower) {
				continue
			}
			if c.isSatelliteAssembly(lower) {
				continue
			}

			candidates = append(candidates, Candidate{
				File: file,
				Pdb:  findAssociatedPdb(file),
			})
		}
	}

	return candidates
}

func (c *Classifier) isBinary(lowerPath string) bool {
	for _, p := range c.binaryPatterns {
		if p.Match(lowerPath) {
			return true
		}
	}
	return false
}

// isSatelliteAssembly matches <dir>/<culture>/<name>.resources.dll, where
// the immediate parent directory must be a parseable culture tag. Satellite
// assemblies are localization-only resource containers and never carry
// their own symbols.
func (c *Classifier) isSatelliteAssembly(lowerPath string) bool {
	if !c.satellite.Match(lowerPath) {
		return false
	}

	parent := path.Base(path.Dir(lowerPath))
	if parent == "." || parent == "/" {
		return false
	}
	tag, err := language.Parse(parent)
	return err == nil && tag != language.Und
}

func findAssociatedPdb(file *nupkg.File) *nupkg.File {
	for _, assoc := range file.AssociatedFiles() {
		if strings.EqualFold(path.Ext(assoc.Name()), ".pdb") {
			return assoc
		}
	}
	return nil
}

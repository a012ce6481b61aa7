// Package character maps mentions of well-known figures to reference images.
package character

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/mythos-studio/pkg/file"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// GenericAttributes describes a figure with no catalog entry.
const GenericAttributes = "divine mythological character, traditional Indian attire, peaceful powerful presence, subtle divine aura, ornate jewelry and sacred symbols"

// multiIndicators mark text that mentions more than one figure. Such scenes
// are rendered without a reference image.
var multiIndicators = []string{" and ", " with ", " along with ", ","}

type Character struct {
	Name       string   `yaml:"name"`
	Image      string   `yaml:"image"`
	Aliases    []string `yaml:"aliases"`
	Attributes string   `yaml:"attributes"`
}

type catalogFile struct {
	Characters []Character `yaml:"characters"`
}

// Catalog resolves text to reference image paths. Image paths are relative
// to the catalog's base directory unless absolute.
type Catalog struct {
	baseDir    string
	characters []Character
}

// NewCatalog builds a catalog from in-memory entries.
func NewCatalog(baseDir string, characters []Character) *Catalog {
	c := &Catalog{baseDir: baseDir}
	for _, ch := range characters {
		if ch.Name == "" || ch.Image == "" {
			continue
		}
		aliases := make([]string, 0, len(ch.Aliases)+1)
		for _, alias := range append([]string{ch.Name}, ch.Aliases...) {
			if a := normalize(fold(alias)); a != "" {
				aliases = append(aliases, a)
			}
		}
		ch.Aliases = aliases
		c.characters = append(c.characters, ch)
	}
	return c
}

// Load reads a YAML catalog. Environment variables in the file are expanded.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character catalog: %w", err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cf); err != nil {
		return nil, fmt.Errorf("parse character catalog: %w", err)
	}

	c := NewCatalog(filepath.Dir(path), cf.Characters)
	log.Info("Loaded %d characters from %s", len(c.characters), path)
	return c, nil
}

// Default is the built-in catalog, looking for <Name>.png under dir.
func Default(dir string) *Catalog {
	return NewCatalog(dir, []Character{
		{
			Name:       "Shiva",
			Image:      "Shiva.png",
			Aliases:    []string{"mahadev", "shankar", "bholenath"},
			Attributes: "meditative calm expression, ash-smeared blue-grey skin, crescent moon and holy cobra in matted hair, third eye closed in peaceful meditation, rudraksha mala and tiger skin, trident nearby",
		},
		{
			Name:       "Hanuman",
			Image:      "Hanuman.png",
			Aliases:    []string{"bajrang", "bajrangbali", "pavanputra"},
			Attributes: "powerful muscular physique, golden-orange fur with ethereal glow, calm wise expression, ornate gold jewelry and sacred thread, divine mace nearby, traditional dhoti",
		},
		{
			Name:       "Krishna",
			Image:      "Krishna.png",
			Aliases:    []string{"kanha", "govinda", "madhav", "vasudev"},
			Attributes: "serene blue skin with soft luminescence, peacock feather crown, gentle smile, playing a bamboo flute, flowing yellow silk dhoti with gold embroidery",
		},
		{
			Name:       "Rama",
			Image:      "Rama.png",
			Aliases:    []string{"ram", "raghav", "raghunath"},
			Attributes: "noble warrior-king posture, traditional crown and royal silk garments, bow and quiver of divine arrows, righteous peaceful expression, soft golden aura",
		},
	})
}

// Len returns the number of characters in the catalog.
func (c *Catalog) Len() int {
	return len(c.characters)
}

// Resolve returns the reference image for the single figure text mentions.
// Text naming several figures, or a figure whose image is missing, yields
// no reference.
func (c *Catalog) Resolve(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	folded := fold(text)
	for _, indicator := range multiIndicators {
		if strings.Contains(folded, indicator) {
			return "", false
		}
	}

	padded := " " + normalize(folded) + " "
	for _, ch := range c.characters {
		for _, alias := range ch.Aliases {
			if !strings.Contains(padded, " "+alias+" ") {
				continue
			}
			path := c.imagePath(ch)
			if !file.Exists(path) {
				log.Debug("Reference image for %s not found at %s", ch.Name, path)
				return "", false
			}
			return path, true
		}
	}
	return "", false
}

// Describe returns the catalog entry whose image is path.
func (c *Catalog) Describe(path string) (Character, bool) {
	if path == "" {
		return Character{}, false
	}
	clean := filepath.Clean(path)
	for _, ch := range c.characters {
		if filepath.Clean(c.imagePath(ch)) == clean {
			return ch, true
		}
	}
	return Character{}, false
}

func (c *Catalog) imagePath(ch Character) string {
	if filepath.IsAbs(ch.Image) || c.baseDir == "" {
		return ch.Image
	}
	return filepath.Join(c.baseDir, ch.Image)
}

// fold case-folds s. Casers carry state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// normalize replaces everything but letters, marks and digits with single spaces.
func normalize(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

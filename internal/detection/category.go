package detection

import (
	"fmt"
	"image/color"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Category is a coarse grouping of model classes used for toggles and colors
type Category string

const (
	CategoryPeople      Category = "people"
	CategoryVehicles    Category = "vehicles"
	CategoryAnimals     Category = "animals"
	CategoryObjects     Category = "objects"
	CategoryElectronics Category = "electronics"
)

type categoryInfo struct {
	color   color.RGBA
	members []string
}

var categoryOrder = []Category{
	CategoryPeople,
	CategoryVehicles,
	CategoryAnimals,
	CategoryObjects,
	CategoryElectronics,
}

var categoryTable = map[Category]categoryInfo{
	CategoryPeople: {
		color:   color.RGBA{R: 0xFF, G: 0x6B, B: 0x6B, A: 0xFF},
		members: []string{"person", "face"},
	},
	CategoryVehicles: {
		color:   color.RGBA{R: 0x4E, G: 0xCD, B: 0xC4, A: 0xFF},
		members: []string{"car", "truck", "bus", "motorcycle", "bicycle", "airplane", "train", "boat"},
	},
	CategoryAnimals: {
		color:   color.RGBA{R: 0x45, G: 0xB7, B: 0xD1, A: 0xFF},
		members: []string{"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe"},
	},
	CategoryObjects: {
		color: color.RGBA{R: 0x96, G: 0xCE, B: 0xB4, A: 0xFF},
		members: []string{
			"bottle", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich",
			"orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
			"potted plant", "bed", "dining table", "toilet", "book", "clock", "vase", "scissors",
			"teddy bear", "hair drier", "toothbrush",
		},
	},
	CategoryElectronics: {
		color:   color.RGBA{R: 0xFE, G: 0xCA, B: 0x57, A: 0xFF},
		members: []string{"tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator"},
	},
}

// classIndex maps a class name to its category. Built once, read-only after init.
var classIndex = buildClassIndex()

func buildClassIndex() map[string]Category {
	idx := make(map[string]Category)
	for _, cat := range categoryOrder {
		for _, name := range categoryTable[cat].members {
			idx[name] = cat
		}
	}
	return idx
}

// Categories returns all categories in legend order
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// Members returns the class names that belong to a category
func Members(cat Category) []string {
	info, ok := categoryTable[cat]
	if !ok {
		return nil
	}
	out := make([]string, len(info.members))
	copy(out, info.members)
	return out
}

// Classify returns the category of a class name. Unknown classes are objects.
func Classify(className string) Category {
	if cat, ok := classIndex[className]; ok {
		return cat
	}
	return CategoryObjects
}

// ColorOf returns the display color of a category
func ColorOf(cat Category) color.RGBA {
	if info, ok := categoryTable[cat]; ok {
		return info.color
	}
	return categoryTable[CategoryObjects].color
}

// HexColor formats a category color as #RRGGBB
func HexColor(cat Category) string {
	c := ColorOf(cat)
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// IsEnabled reports whether the settings enable a category
func IsEnabled(cat Category, s Settings) bool {
	switch cat {
	case CategoryPeople:
		return s.EnablePeople
	case CategoryVehicles:
		return s.EnableVehicles
	case CategoryAnimals:
		return s.EnableAnimals
	case CategoryElectronics:
		return s.EnableElectronics
	default:
		return s.EnableObjects
	}
}

// SetEnabled returns a copy of s with the category flag changed
func SetEnabled(s Settings, cat Category, enabled bool) Settings {
	switch cat {
	case CategoryPeople:
		s.EnablePeople = enabled
	case CategoryVehicles:
		s.EnableVehicles = enabled
	case CategoryAnimals:
		s.EnableAnimals = enabled
	case CategoryElectronics:
		s.EnableElectronics = enabled
	default:
		s.EnableObjects = enabled
	}
	return s
}

// Accept reports whether a prediction passes the confidence gate and its
// category is enabled
func Accept(p Prediction, s Settings) bool {
	return p.Score >= s.MinConfidence && IsEnabled(Classify(p.Class), s)
}

// Filter returns the accepted predictions in their original order
func Filter(predictions []Prediction, s Settings) []Prediction {
	out := make([]Prediction, 0, len(predictions))
	for _, p := range predictions {
		if Accept(p, s) {
			out = append(out, p)
		}
	}
	return out
}

// DisplayName capitalizes the first letter of a class name
func DisplayName(className string) string {
	r, size := utf8.DecodeRuneInString(className)
	if r == utf8.RuneError {
		return className
	}
	return string(unicode.ToUpper(r)) + className[size:]
}

// ParseCategory converts a string to a Category
func ParseCategory(s string) (Category, bool) {
	cat := Category(strings.ToLower(strings.TrimSpace(s)))
	_, ok := categoryTable[cat]
	return cat, ok
}

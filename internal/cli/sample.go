package cli

import (
	"fmt"

	"quiz-battle-service/internal/domain"
)

type sampleItem struct {
	subject, chapter, difficulty string
	prompt                       string
	options                      []string
	correct                      string
}

var sampleItems = []sampleItem{
	{"Maths", "Real Numbers", "Easy", "What is the HCF of 12 and 18?", []string{"2", "3", "6", "9"}, "6"},
	{"Maths", "Real Numbers", "Easy", "Which of these is irrational?", []string{"0.5", "√2", "3/4", "1.25"}, "√2"},
	{"Maths", "Polynomials", "Medium", "How many zeroes can a quadratic polynomial have at most?", []string{"1", "2", "3", "4"}, "2"},
	{"Maths", "Polynomials", "Medium", "The sum of the zeroes of x² - 5x + 6 is", []string{"5", "-5", "6", "-6"}, "5"},
	{"Maths", "Triangles", "Hard", "In a right triangle with legs 6 and 8, the hypotenuse is", []string{"9", "10", "12", "14"}, "10"},
	{"Maths", "Triangles", "Hard", "Two triangles are similar if their corresponding angles are", []string{"supplementary", "complementary", "equal", "obtuse"}, "equal"},
	{"Science", "Light", "Easy", "The SI unit of power of a lens is", []string{"watt", "dioptre", "metre", "lux"}, "dioptre"},
	{"Science", "Light", "Medium", "A concave mirror forms a virtual image when the object is", []string{"at infinity", "at the centre of curvature", "between pole and focus", "beyond C"}, "between pole and focus"},
	{"Science", "Electricity", "Easy", "The unit of electric resistance is", []string{"ampere", "volt", "ohm", "coulomb"}, "ohm"},
	{"Science", "Electricity", "Medium", "Resistors of 2Ω and 3Ω in series have a total resistance of", []string{"1.2Ω", "5Ω", "6Ω", "1Ω"}, "5Ω"},
	{"Science", "Chemical Reactions", "Hard", "Rusting of iron is an example of", []string{"reduction", "oxidation", "neutralisation", "sublimation"}, "oxidation"},
	{"Science", "Chemical Reactions", "Easy", "The chemical formula of common salt is", []string{"KCl", "NaCl", "NaOH", "HCl"}, "NaCl"},
}

// sampleQuestions is the bank used when no database is configured.
func sampleQuestions() []domain.Question {
	out := make([]domain.Question, 0, len(sampleItems))
	for i, item := range sampleItems {
		out = append(out, domain.Question{
			ID:            fmt.Sprintf("cbse10-%02d", i+1),
			Prompt:        item.prompt,
			Options:       item.options,
			CorrectAnswer: item.correct,
			Board:         "CBSE",
			Class:         "10",
			Subject:       item.subject,
			Chapter:       item.chapter,
			Difficulty:    item.difficulty,
		})
	}
	return out
}

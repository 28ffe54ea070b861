package question

import (
	"fmt"
	"math/rand"

	"github.com/langduel/vocab-arena/internal/vocab"
)

// PerMatch is the fixed question count of one arena match.
const PerMatch = 10

// templateCount is the number of generation templates (qTypeId 1..7).
const templateCount = 7

// Generator produces arena question sequences from a vocabulary catalog.
// Generation is intentionally non-deterministic per call; the rng is
// injectable so tests can pin a seed.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator driven by the given random source.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate builds the fixed sequence of questions for one match.
// Returns vocab.ErrInsufficientVocabulary when the catalog is too small.
func (g *Generator) Generate(catalog *vocab.Catalog) ([]Question, error) {
	if err := catalog.CheckGenerable(); err != nil {
		return nil, err
	}

	items := catalog.Items()
	questions := make([]Question, 0, PerMatch)
	for i := 0; i < PerMatch; i++ {
		correct := items[g.rng.Intn(len(items))]
		tpl := g.rng.Intn(templateCount) + 1
		questions = append(questions, g.build(tpl, correct, items))
	}
	return questions, nil
}

func (g *Generator) build(tpl int, correct vocab.Item, items []vocab.Item) Question {
	sentence := carrierSentence(correct.Word)

	switch tpl {
	case 1:
		return g.quiz(tpl,
			fmt.Sprintf(`Nghĩa của từ <span class="text-blue-600 font-bold text-2xl mx-2">%s</span> là gì?`, correct.Word),
			correct.Meaning, g.distractors(correct, items, meaningOf), "", "")
	case 2:
		return g.quiz(tpl,
			fmt.Sprintf(`Pinyin của từ <span class="text-blue-600 font-bold text-2xl mx-2">%s</span> là gì?`, correct.Word),
			correct.Pinyin, g.distractors(correct, items, pinyinOf), "", "")
	case 3:
		return g.quiz(tpl,
			fmt.Sprintf(`Từ nào có nghĩa là <span class="text-green-600 font-bold text-xl mx-2">"%s"</span>?`, correct.Meaning),
			correct.Word, g.distractors(correct, items, wordOf), "", "")
	case 4:
		return g.quiz(tpl, "Nghe và chọn từ vựng đúng:",
			correct.Word, g.distractors(correct, items, wordOf), correct.Word, "")
	case 5:
		return g.quiz(tpl, "Nghe và chọn nghĩa đúng:",
			correct.Meaning, g.distractors(correct, items, meaningOf), correct.Word, "")
	case 6:
		carrier := carrierMeaning(correct.Meaning)
		distract := g.distract(carrier, items, func(it vocab.Item) string {
			return carrierMeaning(it.Meaning)
		})
		return g.quiz(tpl, "Nghe câu và chọn nghĩa đúng:", carrier, distract, "", sentence)
	default: // 7
		return Question{
			Kind:          KindArenaInput,
			TemplateID:    tpl,
			Text:          "Nghe và viết lại câu tiếng Trung:",
			CorrectText:   sentence,
			AudioSentence: sentence,
		}
	}
}

// quiz assembles a choice question: correct value plus three distractors,
// shuffled with an unbiased permutation before the correct index is fixed.
func (g *Generator) quiz(tpl int, text, correctVal string, distractors []string, audioWord, audioSentence string) Question {
	options := append([]string{correctVal}, distractors...)
	g.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	correctIdx := 0
	for i, opt := range options {
		if opt == correctVal {
			correctIdx = i
			break
		}
	}

	return Question{
		Kind:          KindArenaQuiz,
		TemplateID:    tpl,
		Text:          text,
		Options:       options,
		CorrectIndex:  correctIdx,
		AudioWord:     audioWord,
		AudioSentence: audioSentence,
	}
}

// distractors draws three option values distinct from the correct item's
// value and from each other.
func (g *Generator) distractors(correct vocab.Item, items []vocab.Item, field func(vocab.Item) string) []string {
	return g.distract(field(correct), items, field)
}

// distract rejection-samples three values distinct from correctVal and from
// each other. Sampling is bounded; if the catalog cannot supply enough
// distinct values the remainder is filled with placeholder strings so
// generation always terminates.
func (g *Generator) distract(correctVal string, items []vocab.Item, field func(vocab.Item) string) []string {
	const wanted = OptionsPerQuiz - 1

	picked := make([]string, 0, wanted)
	seen := map[string]struct{}{correctVal: {}}

	maxDraws := 20 * len(items)
	for draws := 0; len(picked) < wanted && draws < maxDraws; draws++ {
		val := field(items[g.rng.Intn(len(items))])
		if _, dup := seen[val]; dup {
			continue
		}
		seen[val] = struct{}{}
		picked = append(picked, val)
	}

	for len(picked) < wanted {
		picked = append(picked, fmt.Sprintf("[Distractor %d]", len(picked)+1))
	}
	return picked
}

// carrierSentence embeds a word in the fixed carrier pattern used by the
// listening templates.
func carrierSentence(word string) string {
	return "我喜欢" + word + "。"
}

// carrierMeaning is the translated carrier for template 6 options.
func carrierMeaning(meaning string) string {
	return "Tôi thích " + meaning + "."
}

func wordOf(it vocab.Item) string    { return it.Word }
func pinyinOf(it vocab.Item) string  { return it.Pinyin }
func meaningOf(it vocab.Item) string { return it.Meaning }

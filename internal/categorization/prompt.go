package categorization

import (
	"fmt"
	"strings"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/llm"
)

var categoryDescriptions = map[core.Category]string{
	core.CategoryLectureContent: "the substance of the lecture: explanations, pace, difficulty, topics",
	core.CategoryMaterials:      "slides, handouts, recordings, reading lists, exercises",
	core.CategoryOperations:     "scheduling, announcements, grading, room and course logistics",
	core.CategoryInfrastructure: "network, audio/video, streaming platform, equipment",
	core.CategoryOther:          "anything that fits none of the above",
}

// response mirrors the JSON object the classifier is asked to return.
type response struct {
	Category            string `json:"category" jsonschema:"enum=lecture-content,enum=materials,enum=operations,enum=infrastructure,enum=other"`
	Danger              bool   `json:"danger"`
	Sentiment           int    `json:"sentiment" jsonschema:"enum=0,enum=1"`
	Question            int    `json:"question" jsonschema:"enum=0,enum=1"`
	Concrete            int    `json:"concrete" jsonschema:"enum=0,enum=1"`
	InfrastructureIssue int    `json:"infrastructure-issue" jsonschema:"enum=0,enum=1"`
	Urgency             int    `json:"urgency" jsonschema:"minimum=0,maximum=3"`
}

// ResponseSchema returns the schema sent along with every classification call.
func ResponseSchema() (llm.Schema, error) {
	return llm.GenerateSchema[response](
		"comment_classification",
		"Category, danger flag, sentiment and signal tags for one feedback comment",
	)
}

// BuildPrompt embeds a comment in the fixed classification instructions.
func BuildPrompt(text string) string {
	var prompt strings.Builder

	prompt.WriteString("You are analysing free-text feedback about a course. ")
	prompt.WriteString("Classify the comment below and answer with a single JSON object and nothing else.\n\n")

	prompt.WriteString("Fields:\n")
	prompt.WriteString("- \"category\": exactly one of:\n")
	for _, cat := range core.Categories() {
		prompt.WriteString(fmt.Sprintf("    - %s: %s\n", cat, categoryDescriptions[cat]))
	}
	prompt.WriteString("- \"danger\": true if the comment is abusive, harassing or otherwise inappropriate, else false\n")
	prompt.WriteString("- \"sentiment\": 1 if the comment is positive overall, 0 if negative\n")
	prompt.WriteString("- \"question\": 1 if the comment asks a question, else 0\n")
	prompt.WriteString("- \"concrete\": 1 if the comment makes a concrete, actionable point, else 0\n")
	prompt.WriteString("- \"infrastructure-issue\": 1 if the comment reports a technical or facility problem, else 0\n")
	prompt.WriteString("- \"urgency\": integer 0 (none) to 3 (needs action now)\n\n")

	prompt.WriteString("Example:\n")
	prompt.WriteString(`{"category": "materials", "danger": false, "sentiment": 0, "question": 1, "concrete": 1, "infrastructure-issue": 0, "urgency": 2}`)
	prompt.WriteString("\n\nComment:\n")
	prompt.WriteString(text)
	prompt.WriteString("\n")

	return prompt.String()
}

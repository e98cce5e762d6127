package extract

import (
	"fmt"
	"strings"
	"time"
)

const syllabusSystem = `You are a study assistant that turns a course syllabus into a study plan.
Split the syllabus into concrete study tasks, one per topic, and recommend how many minutes a student should spend on each.
Reply with a single JSON object and nothing else:
{"studyTasks":[{"topic":"<topic>","durationMinutes":<whole minutes>}]}`

const datesheetSystemTemplate = `You extract test schedules from photos or PDFs of school datesheets.
Rules:
1. A test event that spans several subjects on different days (for example "Unit Test 1" with Physics, Chemistry and Maths) is ONE entry named after the event. Never emit one entry per subject.
2. Put every subject and topic of the event into one "syllabus" string, for example "Physics: Chapters 1-3, Chemistry: Organic Compounds".
3. startDate is the earliest date of the event and endDate the latest.
4. Write dates as YYYY-MM-DD. When the year is missing, infer it from today's date: %s.
Reply with a single JSON object and nothing else:
{"tests":[{"testName":"<name>","startDate":"YYYY-MM-DD","endDate":"YYYY-MM-DD","syllabus":"<optional>"}]}`

const topicsSystem = `You are a curriculum assistant. From the list of syllabus topics you are given, select only those that belong to the requested subject.
Return topics exactly as written in the list.
Reply with a single JSON object and nothing else:
{"suggestedTopics":["<topic>"]}`

func datesheetSystem(today time.Time) string {
	return fmt.Sprintf(datesheetSystemTemplate, today.Format("Monday, 2 January 2006"))
}

func topicsPrompt(subject string, topics []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n\nSyllabus topics:\n", subject)
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	return b.String()
}

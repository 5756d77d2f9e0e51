package utils

import (
	"context"
	"strings"

	"clientportal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Calls shorter than this that are not voicemails count as unanswered.
const unansweredThresholdSec = 10

// ClassifyInput is what the text classifier gets to look at.
type ClassifyInput struct {
	ActivityType string
	Direction    string
	DurationSec  int
	Transcript   string
	Message      string
}

// TextClassifier maps an activity's text to a workflow category and a short
// summary. The production implementation calls an external model; the
// contract here is only the output enum.
type TextClassifier interface {
	Classify(ctx context.Context, input ClassifyInput) (category, summary string, err error)
}

// KeywordClassifier is the deterministic default: keyword buckets over the
// transcript/message. Good enough to keep the pipeline running when no
// external classifier is configured.
type KeywordClassifier struct{}

var keywordBuckets = []struct {
	category string
	words    []string
}{
	{models.CategoryConverted, []string{"booked", "scheduled the appointment", "signed up"}},
	{models.CategorySpam, []string{"warranty expir", "final notice", "robocall", "press 1"}},
	{models.CategoryApplicant, []string{"job", "hiring", "resume", "position", "apply"}},
	{models.CategoryNotAFit, []string{"wrong number", "not interested", "outside your area", "out of our service area"}},
	{models.CategoryVeryGood, []string{"ready to start", "how soon can you", "send me the quote"}},
	{models.CategoryWarm, []string{"quote", "estimate", "pricing", "how much", "interested in"}},
	{models.CategoryNeedsAttention, []string{"call me back", "still waiting", "complaint", "frustrated"}},
}

func (KeywordClassifier) Classify(_ context.Context, input ClassifyInput) (string, string, error) {
	text := strings.ToLower(input.Transcript + " " + input.Message)
	if strings.TrimSpace(text) == "" {
		return models.CategoryNeutral, "", nil
	}
	for _, bucket := range keywordBuckets {
		for _, w := range bucket.words {
			if strings.Contains(text, w) {
				return bucket.category, summarize(input), nil
			}
		}
	}
	return models.CategoryNeutral, summarize(input), nil
}

func summarize(input ClassifyInput) string {
	text := strings.TrimSpace(input.Transcript)
	if text == "" {
		text = strings.TrimSpace(input.Message)
	}
	const max = 160
	if len(text) > max {
		return text[:max] + "…"
	}
	return text
}

// Classifier assigns categories to activities while honoring manual
// overrides.
type Classifier struct {
	DB     *gorm.DB
	Text   TextClassifier
	Logger *logrus.Entry
}

func NewClassifier(db *gorm.DB, text TextClassifier) *Classifier {
	if text == nil {
		text = KeywordClassifier{}
	}
	return &Classifier{
		DB:     db,
		Text:   text,
		Logger: logrus.WithField("component", "classifier"),
	}
}

// Classify decides the category for one activity, mutating a in place.
// Override rule: a manual category or any rating pins the category, no
// matter what; callers bulk-reclassifying must go through here.
func (cl *Classifier) Classify(ctx context.Context, a *models.CallActivity) (bool, error) {
	if a.ManuallyReviewed() {
		return false, nil
	}

	// Short calls never reached anyone. Voicemails, texts and forms carry
	// no meaningful duration.
	if a.ActivityType == models.ActivityTypeCall && a.DurationSec < unansweredThresholdSec {
		a.Category = models.CategoryUnanswered
		a.CategorySource = models.CategorySourceAuto
		a.ClassificationSummary = ""
		return true, nil
	}

	// Voicemails go straight to the attention queue; the transcript rarely
	// carries enough signal for the text classifier.
	if a.ActivityType == models.ActivityTypeVoicemail {
		a.Category = models.CategoryNeedsAttention
		a.CategorySource = models.CategorySourceAuto
		a.ClassificationSummary = summarize(ClassifyInput{Transcript: a.Transcript, Message: a.Message})
		return true, nil
	}

	category, summary, err := cl.Text.Classify(ctx, ClassifyInput{
		ActivityType: a.ActivityType,
		Direction:    a.Direction,
		DurationSec:  a.DurationSec,
		Transcript:   a.Transcript,
		Message:      a.Message,
	})
	if err != nil {
		return false, err
	}
	if !models.IsValidCategory(category) {
		cl.Logger.WithFields(logrus.Fields{
			"activity_id": a.ID,
			"category":    category,
		}).Warn("classifier returned unknown category, using neutral")
		category = models.CategoryNeutral
	}

	a.Category = category
	a.CategorySource = models.CategorySourceAuto
	a.ClassificationSummary = summary
	return true, nil
}

// Reclassify re-runs classification over up to limit of the tenant's
// activities. Without force only unreviewed activities are processed;
// manually reviewed leads are always skipped and counted.
func (cl *Classifier) Reclassify(ctx context.Context, userID uint, limit int, force bool) (processed, skipped int, err error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	query := cl.DB.Where("user_id = ?", userID)
	if !force {
		query = query.Where("category = ?", models.CategoryUnreviewed)
	}

	var activities []models.CallActivity
	if err := query.Order("started_at DESC").Limit(limit).Find(&activities).Error; err != nil {
		return 0, 0, err
	}

	for i := range activities {
		a := &activities[i]
		if a.ManuallyReviewed() {
			skipped++
			continue
		}
		changed, cerr := cl.Classify(ctx, a)
		if cerr != nil {
			cl.Logger.WithField("activity_id", a.ID).WithError(cerr).Warn("classification failed")
			skipped++
			continue
		}
		if !changed {
			skipped++
			continue
		}
		if err := cl.DB.Model(a).Select("category", "category_source", "classification_summary").
			Updates(map[string]interface{}{
				"category":               a.Category,
				"category_source":        a.CategorySource,
				"classification_summary": a.ClassificationSummary,
			}).Error; err != nil {
			return processed, skipped, err
		}
		processed++
	}
	return processed, skipped, nil
}

package exam

import (
	"reflect"
	"testing"
)

func TestBuildAnswerKey(t *testing.T) {
	rows := []keyRow{
		{QuestionID: 1, QuestionType: TypeMultipleChoice, OptionID: int64Ptr(12)},
		{QuestionID: 1, QuestionType: TypeMultipleChoice, OptionID: int64Ptr(10)},
		{QuestionID: 1, QuestionType: TypeMultipleChoice, OptionID: int64Ptr(12)},
		{QuestionID: 2, QuestionType: TypeTrueFalse, Answer: strPtr("true")},
		{QuestionID: 3, QuestionType: TypeShortAnswer, Answer: strPtr("paris")},
		{QuestionID: 4, QuestionType: TypeMultipleChoice},
		{QuestionID: 5, QuestionType: TypeMultipleChoice, Answer: strPtr("A")},
		{QuestionID: 6, QuestionType: TypeShortAnswer, OptionID: int64Ptr(60)},
	}

	key := BuildAnswerKey(rows)

	if len(key) != 3 {
		t.Fatalf("expected 3 keyed questions, got %d: %+v", len(key), key)
	}
	if !reflect.DeepEqual(key[1].OptionIDs, []int64{10, 12}) {
		t.Fatalf("expected sorted unique options [10 12], got %v", key[1].OptionIDs)
	}
	if key[2].Answer == nil || *key[2].Answer != "true" {
		t.Fatalf("expected true/false answer, got %+v", key[2])
	}
	if key[3].Answer == nil || *key[3].Answer != "paris" {
		t.Fatalf("expected short answer, got %+v", key[3])
	}
	for _, missing := range []int64{4, 5, 6} {
		if _, ok := key[missing]; ok {
			t.Fatalf("expected question %d to be left out", missing)
		}
	}
}

func TestAnswerKeyItems(t *testing.T) {
	key := AnswerKey{
		3: {QuestionID: 3, Answer: strPtr("paris")},
		1: {QuestionID: 1, OptionIDs: []int64{10, 12}},
	}

	items := key.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].QuestionID != 1 || *items[0].CorrectOptionID != 10 {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].QuestionID != 1 || *items[1].CorrectOptionID != 12 {
		t.Fatalf("unexpected second item %+v", items[1])
	}
	if items[2].QuestionID != 3 || items[2].CorrectAnswer == nil || *items[2].CorrectAnswer != "paris" {
		t.Fatalf("unexpected third item %+v", items[2])
	}
}

package db

import (
	"reflect"
	"testing"
)

func TestConfigRepo_Filters(t *testing.T) {
	t.Run("should start without filters", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.GetFilters()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 0 {
			t.Fatalf("\nwanted:\nempty list\ngot:\n%v", got)
		}
	})

	t.Run("should update filters", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		want := []string{`example\.com`, `-^ads\.`}

		err := repo.SetFilters(want)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetFilters()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should store nil filters as an empty list", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		if err := repo.SetFilters([]string{"a"}); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if err := repo.SetFilters(nil); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetFilters()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got == nil || len(got) != 0 {
			t.Fatalf("\nwanted:\nempty list\ngot:\n%v", got)
		}
	})
}

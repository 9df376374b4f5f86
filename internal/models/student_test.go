package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStudentActiveOnHonoursStatusAndExpiry(t *testing.T) {
	expiry := time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)
	student := Student{Status: StudentStatusActive, EnrolledUntil: &expiry}

	require.True(t, student.ActiveOn(expiry.Add(-time.Minute)))
	require.False(t, student.ActiveOn(expiry))

	student.Status = StudentStatusOnLeave
	require.False(t, student.ActiveOn(expiry.Add(-time.Hour)))
}

func TestStudentDisplayNamePrefersPreferredName(t *testing.T) {
	require.Equal(t, "Sam Rivera", Student{FirstName: "Samuel", PreferredName: "Sam", LastName: "Rivera"}.DisplayName())
	require.Equal(t, "Samuel Rivera", Student{FirstName: "Samuel", LastName: "Rivera"}.DisplayName())
}

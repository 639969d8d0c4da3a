package ai

import (
	"fmt"
	"strings"
)

const (
	FeatureTaskBreakdown     = "task-breakdown"
	FeatureMeetingSummary    = "meeting-summary"
	FeaturePerformanceReview = "performance-review"
)

// Feature builds one prompt from request input.
type Feature interface {
	Name() string
	// Missing returns the first required field that is empty, or "".
	Missing() string
	Request() Request
	// FailureMessage is the client-facing text when the provider fails.
	FailureMessage() string
}

type TaskBreakdownInput struct {
	TaskTitle   string `json:"taskTitle"`
	Description string `json:"description"`
	ProjectName string `json:"projectName"`
}

func (in TaskBreakdownInput) Name() string { return FeatureTaskBreakdown }

func (in TaskBreakdownInput) Missing() string {
	if strings.TrimSpace(in.TaskTitle) == "" {
		return "taskTitle"
	}
	return ""
}

func (in TaskBreakdownInput) FailureMessage() string { return "Failed to generate task breakdown" }

func (in TaskBreakdownInput) Request() Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", strings.TrimSpace(in.TaskTitle))
	if in.ProjectName != "" {
		fmt.Fprintf(&b, "Project: %s\n", strings.TrimSpace(in.ProjectName))
	}
	if in.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", strings.TrimSpace(in.Description))
	}
	return Request{
		Feature: FeatureTaskBreakdown,
		System: "You are a project planning assistant. Break the task into 3 to 8 concrete subtasks. " +
			`Reply with a JSON object of the form {"summary": string, "subtasks": [{"title": string, ` +
			`"description": string, "estimateHours": number}]}.`,
		User: b.String(),
	}
}

type MeetingSummaryInput struct {
	Transcript string `json:"transcript"`
	Title      string `json:"title"`
}

func (in MeetingSummaryInput) Name() string { return FeatureMeetingSummary }

func (in MeetingSummaryInput) Missing() string {
	if strings.TrimSpace(in.Transcript) == "" {
		return "transcript"
	}
	return ""
}

func (in MeetingSummaryInput) FailureMessage() string { return "Failed to generate meeting summary" }

func (in MeetingSummaryInput) Request() Request {
	var b strings.Builder
	if in.Title != "" {
		fmt.Fprintf(&b, "Meeting: %s\n", strings.TrimSpace(in.Title))
	}
	fmt.Fprintf(&b, "Transcript:\n%s\n", strings.TrimSpace(in.Transcript))
	return Request{
		Feature: FeatureMeetingSummary,
		System: "You summarise meeting transcripts for a project team. " +
			`Reply with a JSON object of the form {"summary": string, "keyPoints": [string], ` +
			`"actionItems": [{"owner": string, "item": string, "dueDate": string}], "decisions": [string]}. ` +
			"Use an empty string for unknown owners or dates.",
		User: b.String(),
	}
}

type PerformanceReviewInput struct {
	EmployeeName string `json:"employeeName"`
	Notes        string `json:"notes"`
	Role         string `json:"role"`
	Period       string `json:"period"`
}

func (in PerformanceReviewInput) Name() string { return FeaturePerformanceReview }

func (in PerformanceReviewInput) Missing() string {
	if strings.TrimSpace(in.EmployeeName) == "" {
		return "employeeName"
	}
	if strings.TrimSpace(in.Notes) == "" {
		return "notes"
	}
	return ""
}

func (in PerformanceReviewInput) FailureMessage() string {
	return "Failed to generate performance review"
}

func (in PerformanceReviewInput) Request() Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Employee: %s\n", strings.TrimSpace(in.EmployeeName))
	if in.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", strings.TrimSpace(in.Role))
	}
	if in.Period != "" {
		fmt.Fprintf(&b, "Review period: %s\n", strings.TrimSpace(in.Period))
	}
	fmt.Fprintf(&b, "Manager notes:\n%s\n", strings.TrimSpace(in.Notes))
	return Request{
		Feature: FeaturePerformanceReview,
		System: "You help managers draft fair, specific performance reviews from their notes. " +
			`Reply with a JSON object of the form {"summary": string, "overallScore": number from 1 to 5, ` +
			`"strengths": [string], "improvements": [string], "goals": [string]}.`,
		User: b.String(),
	}
}

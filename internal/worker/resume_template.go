package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"buildmate/internal/database"
)

// resumeTemplateString 是 PDF 导出的 Go HTML 模板，按 A4 纸面排版。
const resumeTemplateString = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        @page { size: A4; margin: 0; }
        body {
            margin: 0;
            padding: 0;
            font-family: 'Helvetica Neue', Arial, sans-serif;
            font-size: 10pt;
            color: #222;
        }
        .a4-page {
            width: 794px;  /* A4 @ 96 DPI */
            min-height: 1122px;
            background: white;
            padding: 48px 56px;
            box-sizing: border-box;
        }
        .header { display: flex; justify-content: space-between; align-items: flex-start; }
        .full-name { font-size: 24pt; font-weight: bold; margin: 0; }
        .job-title { font-size: 13pt; color: #3388ff; margin: 4px 0 0 0; }
        .photo { width: 96px; height: 96px; object-fit: cover; border-radius: 6px; }
        .summary { margin-top: 18px; white-space: pre-wrap; }
        .section-title {
            font-size: 12pt;
            font-weight: bold;
            border-bottom: 2px solid #3388ff;
            margin: 22px 0 8px 0;
            padding-bottom: 3px;
        }
        .entry { margin-bottom: 10px; }
        .entry-head { font-weight: bold; }
        .entry-sub { color: #666; font-size: 9pt; }
        .entry-desc { margin-top: 2px; white-space: pre-wrap; }
        .skills span {
            display: inline-block;
            background: #eef4ff;
            border-radius: 4px;
            padding: 2px 8px;
            margin: 0 6px 6px 0;
        }
    </style>
</head>
<body>
<div class="a4-page">
    <div class="header">
        <div>
            <p class="full-name">{{.FullName}}</p>
            {{if .Title}}<p class="job-title">{{.Title}}</p>{{end}}
        </div>
        {{if .PhotoSrc}}<img class="photo" src="{{.PhotoSrc}}" alt="">{{end}}
    </div>

    {{if .Summary}}<div class="summary">{{.Summary}}</div>{{end}}

    {{if .Experience}}
    <div class="section-title">Experience</div>
    {{range .Experience}}
    <div class="entry">
        <div class="entry-head">{{.Heading}}</div>
        {{if .Sub}}<div class="entry-sub">{{.Sub}}</div>{{end}}
        {{if .Description}}<div class="entry-desc">{{.Description}}</div>{{end}}
    </div>
    {{end}}
    {{end}}

    {{if .Education}}
    <div class="section-title">Education</div>
    {{range .Education}}
    <div class="entry">
        <div class="entry-head">{{.Heading}}</div>
        {{if .Sub}}<div class="entry-sub">{{.Sub}}</div>{{end}}
        {{if .Description}}<div class="entry-desc">{{.Description}}</div>{{end}}
    </div>
    {{end}}
    {{end}}

    {{if .Skills}}
    <div class="section-title">Skills</div>
    <div class="skills">{{range .Skills}}<span>{{.}}</span>{{end}}</div>
    {{end}}
</div>
</body>
</html>
`

var resumeTemplate = template.Must(template.New("resume").Parse(resumeTemplateString))

// historyRecord 覆盖前端常用的字段名；缺失的键渲染时自动省略。
type historyRecord struct {
	Title       string `json:"title"`
	Degree      string `json:"degree"`
	Company     string `json:"company"`
	Institution string `json:"institution"`
	School      string `json:"school"`
	Period      string `json:"period"`
	Years       string `json:"years"`
	Description string `json:"description"`
}

type historyView struct {
	Heading     string
	Sub         string
	Description string
}

type resumeView struct {
	FullName   string
	Title      string
	Summary    string
	PhotoSrc   template.URL
	Experience []historyView
	Education  []historyView
	Skills     []string
}

// buildResumeHTML 将简历记录渲染成可打印的 HTML 文档。
func buildResumeHTML(row database.Resume) (string, error) {
	view := resumeView{
		FullName:   row.FullName,
		Title:      row.Title,
		Summary:    row.Summary,
		Experience: historyViews(row.Experience),
		Education:  historyViews(row.Education),
		Skills:     []string(row.Skills),
	}

	if row.PhotoData != nil && *row.PhotoData != "" {
		src := *row.PhotoData
		if !strings.HasPrefix(src, "data:") {
			src = "data:image/png;base64," + src
		}
		view.PhotoSrc = template.URL(src)
	}

	var buf bytes.Buffer
	if err := resumeTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("execute resume template: %w", err)
	}
	return buf.String(), nil
}

// historyViews 宽松解析 JSONB 数组；解析失败按空白处理，不让导出失败。
func historyViews(raw []byte) []historyView {
	var records []historyRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil
	}

	views := make([]historyView, 0, len(records))
	for _, r := range records {
		heading := firstNonEmpty(r.Title, r.Degree)
		sub := strings.TrimSpace(strings.Join(compact(
			firstNonEmpty(r.Company, r.Institution, r.School),
			firstNonEmpty(r.Period, r.Years),
		), " · "))
		if heading == "" && sub == "" && r.Description == "" {
			continue
		}
		views = append(views, historyView{
			Heading:     heading,
			Sub:         sub,
			Description: r.Description,
		})
	}
	return views
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func compact(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

package templates

const minimalLayout = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
{{range .Blocks}}{{if .Heading}}<h{{.Level}}>{{.Heading}}</h{{.Level}}>
{{end}}{{.HTML}}
{{end}}</main>
</body>
</html>
`

const standardLayout = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="generator" content="docgen">
</head>
<body>
<header><h1>{{.Title}}</h1></header>
<nav>
<ul>
{{range .Blocks}}{{if .Heading}}<li><a href="#{{.Anchor}}">{{.Heading}}</a></li>
{{end}}{{end}}</ul>
</nav>
<main>
{{range .Blocks}}{{if .Heading}}<section id="{{.Anchor}}">
<h{{.Level}}>{{.Heading}}</h{{.Level}}>
{{.HTML}}
</section>
{{else}}{{.HTML}}
{{end}}{{end}}</main>
</body>
</html>
`

const reportLayout = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="generator" content="docgen">
</head>
<body>
<header>
<h1>{{.Title}}</h1>
{{if .Metadata}}<table>
{{range $k, $v := .Metadata}}<tr><th>{{$k}}</th><td>{{$v}}</td></tr>
{{end}}</table>{{end}}
<p>Generated {{.DateTime}}</p>
</header>
<main>
{{range .Blocks}}{{if .Heading}}<section id="{{.Anchor}}">
<h{{.Level}}>{{.Heading}}</h{{.Level}}>
{{.HTML}}
</section>
{{else}}{{.HTML}}
{{end}}{{end}}</main>
</body>
</html>
`

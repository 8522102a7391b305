package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/sikhya/portal/apps/api/echo"
	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
)

var (
	errHelp          = errors.New("help provided")
	errNoMigrations  = errors.New("migrations only apply to the postgres store")
	errNotTeacher    = errors.New("user is not a teacher")
	errTokenIdentity = errors.New("exactly one of -email or -student-id is required")
)

type commandLine struct {
	db       *sql.DB // nil unless the postgres store is used
	conf     *core.Config
	validate *validator.Validate
	usrSvc   user.Service
	teachSvc teaching.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, version, ...)")
	fmt.Fprintln(cli.out, "  addstudent -name NAME -id STUDENT_ID -grade GRADE [-school SCHOOL] - register a student")
	fmt.Fprintln(cli.out, "  addadmin -name NAME -email EMAIL - create an admin, or promote an existing user")
	fmt.Fprintln(cli.out, "  linkstudents [-email TEACHER_EMAIL] - link teachers to the students of their grade")
	fmt.Fprintln(cli.out, "  token -email EMAIL | -student-id STUDENT_ID - print a bearer token for a user")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addStudentCmd := flag.NewFlagSet("addstudent", flag.ExitOnError)
	addStudentName := addStudentCmd.String("name", "", "The student's full name.")
	addStudentID := addStudentCmd.String("id", "", "The school-issued student ID, used to log in.")
	addStudentGrade := addStudentCmd.String("grade", "", "The student's grade: 8, 9 or 10.")
	addStudentSchool := addStudentCmd.String("school", "", "The student's school.")

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ExitOnError)
	addAdminName := addAdminCmd.String("name", "", "The admin's full name.")
	addAdminEmail := addAdminCmd.String("email", "", "The admin's email, also used by the token command.")

	linkStudentsCmd := flag.NewFlagSet("linkstudents", flag.ExitOnError)
	linkStudentsEmail := linkStudentsCmd.String("email", "", "Only reconcile the teacher with this email.")

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenEmail := tokenCmd.String("email", "", "The user's email.")
	tokenStudentID := tokenCmd.String("student-id", "", "The student's ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addStudentName == "" || *addStudentID == "" || *addStudentGrade == "" {
			addStudentCmd.Usage()
			return errHelp
		}
		return cli.addStudent(user.NewStudent{
			Name:      *addStudentName,
			StudentID: *addStudentID,
			Grade:     core.Grade(*addStudentGrade),
			School:    *addStudentSchool,
		})

	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAdminName == "" || *addAdminEmail == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.addAdmin(user.NewAdmin{Name: *addAdminName, Email: *addAdminEmail})

	case "linkstudents":
		if err := linkStudentsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.linkStudents(*linkStudentsEmail)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if (*tokenEmail == "") == (*tokenStudentID == "") {
			tokenCmd.Usage()
			return errTokenIdentity
		}
		return cli.token(*tokenEmail, *tokenStudentID)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) addStudent(ns user.NewStudent) error {
	if err := ns.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.RegisterStudent(context.Background(), ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "student %s registered (id %s)\n", usr.StudentID, usr.ID)
	return nil
}

// addAdmin creates an admin or promotes the user with na.Email.
func (cli *commandLine) addAdmin(na user.NewAdmin) error {
	if err := na.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.AddAdmin(context.Background(), na)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "admin %s ready (id %s)\n", usr.Email, usr.ID)
	return nil
}

// linkStudents reconciles the teacher with email, or every teacher when email is empty.
func (cli *commandLine) linkStudents(email string) error {
	ctx := context.Background()

	var created int
	if email == "" {
		n, err := cli.teachSvc.ReconcileLinks(ctx)
		if err != nil {
			return err
		}
		created = n
	} else {
		teacher, err := cli.usrSvc.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !teacher.IsTeacher() {
			return errNotTeacher
		}
		if created, err = cli.teachSvc.ReconcileTeacher(ctx, teacher); err != nil {
			return err
		}
	}
	fmt.Fprintf(cli.out, "%d link(s) created\n", created)
	return nil
}

func (cli *commandLine) token(email, studentID string) error {
	ctx := context.Background()

	var usr user.User
	var err error
	if email != "" {
		usr, err = cli.usrSvc.GetByEmail(ctx, email)
	} else {
		usr, err = cli.usrSvc.GetByStudentID(ctx, studentID)
	}
	if err != nil {
		return err
	}

	token, err := echoapi.NewUserToken(usr, cli.conf)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
